package envcheck

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// Certificate is one parsed certificate and where it came from.
type Certificate struct {
	Path     string
	Subject  string
	NotAfter time.Time
}

// LoadCertificates reads every PEM certificate at path, which may be a file
// or a directory of .pem, .crt and .cer files.
func LoadCertificates(path string) ([]Certificate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("certificate store: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files = nil
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read certificate store: %w", err)
		}
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".pem", ".crt", ".cer":
				if !e.IsDir() {
					files = append(files, filepath.Join(path, e.Name()))
				}
			}
		}
	}

	var certs []Certificate
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read certificate: %w", err)
		}
		for {
			var block *pem.Block
			block, data = pem.Decode(data)
			if block == nil {
				break
			}
			if block.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse certificate in %s: %w", f, err)
			}
			certs = append(certs, Certificate{Path: f, Subject: cert.Subject.String(), NotAfter: cert.NotAfter})
		}
	}
	return certs, nil
}

func (c *Checker) checkCertificates() CheckResult {
	cr := CheckResult{Name: CertificatesCheck}
	if c.CertPath == "" {
		cr.Status = phase.Skipped
		return cr
	}

	path := c.resolvePath(c.CertPath)
	certs, err := LoadCertificates(path)
	if err != nil {
		cr.Status = phase.Failed
		cr.Errors = append(cr.Errors, taxonomy.New(taxonomy.EnvironmentConfiguration, taxonomy.High, "certificates", err.Error()).WithCause(err))
		return cr
	}
	if len(certs) == 0 {
		cr.Status = phase.Failed
		cr.Errors = append(cr.Errors, taxonomy.New(taxonomy.EnvironmentConfiguration, taxonomy.High, "certificates",
			fmt.Sprintf("no certificates found in %s", path)))
		return cr
	}

	days := c.ExpiryDays
	if days <= 0 {
		days = DefaultExpiryDays
	}
	now := time.Now()
	window := now.AddDate(0, 0, days)

	cr.Status = phase.Passed
	for _, cert := range certs {
		switch {
		case !cert.NotAfter.After(now):
			cr.Errors = append(cr.Errors, taxonomy.New(taxonomy.EnvironmentConfiguration, taxonomy.Critical, cert.Path,
				fmt.Sprintf("certificate %s expired on %s", cert.Subject, cert.NotAfter.Format(time.DateOnly))))
			cr.Status = phase.Failed
		case cert.NotAfter.Before(window):
			left := int(cert.NotAfter.Sub(now).Hours() / 24)
			cr.Errors = append(cr.Errors, taxonomy.New(taxonomy.EnvironmentConfiguration, taxonomy.High, cert.Path,
				fmt.Sprintf("certificate %s expires in %d days (%s)", cert.Subject, left, cert.NotAfter.Format(time.DateOnly))))
			cr.Status = phase.Failed
		}
	}
	return cr
}
