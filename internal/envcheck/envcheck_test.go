package envcheck

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func writeCert(t *testing.T, path, cn string, notAfter time.Time) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-48 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
}

func TestChecker_RequiredVariables(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_ISSUER=https://auth.local\n"), 0o644))

	c := &Checker{
		Required: map[Group][]string{
			Database:       {"DATABASE_URL"},
			Authentication: {"JWT_ISSUER", "JWT_AUDIENCE"},
		},
		Root:   dir,
		Lookup: fakeEnv(map[string]string{"DATABASE_URL": "postgres://db", "JWT_AUDIENCE": ""}),
	}
	res := c.Validate(context.Background())

	db, ok := res.Check(string(Database))
	require.True(t, ok)
	assert.Equal(t, phase.Passed, db.Status)

	auth, _ := res.Check(string(Authentication))
	assert.Equal(t, phase.Failed, auth.Status)
	assert.Equal(t, []string{"JWT_AUDIENCE"}, auth.Missing, "empty values count as missing; dotenv fills JWT_ISSUER")
	require.Len(t, auth.Errors, 1)
	assert.Equal(t, taxonomy.EnvironmentConfiguration, auth.Errors[0].Category)
	assert.Equal(t, "JWT_AUDIENCE", auth.Errors[0].Data(taxonomy.DataVariable))

	net, _ := res.Check(string(Networking))
	assert.Equal(t, phase.Skipped, net.Status)
	certs, _ := res.Check(CertificatesCheck)
	assert.Equal(t, phase.Skipped, certs.Status)

	assert.Equal(t, phase.Failed, res.OverallStatus())
	_, present := os.LookupEnv("JWT_ISSUER")
	assert.False(t, present, "dotenv values must not leak into the process environment")
}

func TestChecker_ConnectionStrings(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  phase.Status
	}{
		{"valid mysql dsn", "app:secret@tcp(db.local:3306)/orders?parseTime=true", phase.Passed},
		{"missing database separator", "app:secret@tcp(db.local:3306)", phase.Failed},
		{"url form is not parsed", "postgres://app@db.local/orders", phase.Passed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Checker{
				Required: map[Group][]string{Database: {"DB_DSN"}},
				Lookup:   fakeEnv(map[string]string{"DB_DSN": tt.value}),
			}
			db, _ := c.Validate(context.Background()).Check(string(Database))
			assert.Equal(t, tt.want, db.Status)
			if tt.want == phase.Failed {
				require.Len(t, db.Errors, 1)
				assert.Equal(t, taxonomy.ConfigurationError, db.Errors[0].Category)
				assert.NotContains(t, db.Errors[0].Message, "secret")
				assert.Empty(t, db.Missing)
			}
		})
	}
}

func TestChecker_NothingConfiguredIsSkipped(t *testing.T) {
	res := (&Checker{Lookup: fakeEnv(nil)}).Validate(context.Background())
	assert.Equal(t, phase.Skipped, res.OverallStatus())
	assert.Len(t, res.Checks, len(Groups)+1)
}

func TestChecker_Certificates(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name         string
		notAfter     time.Time
		days         int
		wantStatus   phase.Status
		wantSeverity taxonomy.Severity
	}{
		{"valid", now.AddDate(1, 0, 0), 30, phase.Passed, 0},
		{"inside default window", now.AddDate(0, 0, 10), 0, phase.Failed, taxonomy.High},
		{"outside custom window", now.AddDate(0, 0, 10), 7, phase.Passed, 0},
		{"expired", now.Add(-time.Hour), 30, phase.Failed, taxonomy.Critical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeCert(t, filepath.Join(dir, "server.pem"), "api.local", tt.notAfter)
			require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

			c := &Checker{Root: dir, CertPath: ".", ExpiryDays: tt.days, Lookup: fakeEnv(nil)}
			res := c.Validate(context.Background())
			cr, _ := res.Check(CertificatesCheck)

			assert.Equal(t, tt.wantStatus, cr.Status)
			if tt.wantStatus == phase.Failed {
				require.Len(t, cr.Errors, 1)
				assert.Equal(t, tt.wantSeverity, cr.Errors[0].Severity)
				assert.Contains(t, cr.Errors[0].Message, "CN=api.local")
			}
		})
	}
}

func TestChecker_MissingCertificateStore(t *testing.T) {
	c := &Checker{CertPath: filepath.Join(t.TempDir(), "missing.pem"), Lookup: fakeEnv(nil)}
	cr, _ := c.Validate(context.Background()).Check(CertificatesCheck)
	assert.Equal(t, phase.Failed, cr.Status)
	require.Len(t, cr.Errors, 1)
	assert.ErrorIs(t, cr.Errors[0], os.ErrNotExist)
}

func TestLoadCertificates_Bundle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pem")
	b := filepath.Join(dir, "b.pem")
	writeCert(t, a, "a", time.Now().AddDate(1, 0, 0))
	writeCert(t, b, "b", time.Now().AddDate(2, 0, 0))

	dataA, _ := os.ReadFile(a)
	dataB, _ := os.ReadFile(b)
	bundle := filepath.Join(dir, "bundle.crt")
	require.NoError(t, os.WriteFile(bundle, append(dataA, dataB...), 0o644))

	certs, err := LoadCertificates(bundle)
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, "CN=a", certs[0].Subject)
	assert.Equal(t, "CN=b", certs[1].Subject)
}
