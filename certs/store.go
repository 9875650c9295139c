// Package certs issues the locally trusted certificate the form is served
// with when HTTPS is enabled. The CA is created and installed into the
// system trust store by truststore; the leaf is reissued whenever the set of
// LAN addresses changes.
package certs

import (
	"bufio"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jittering/truststore"
	"github.com/sirupsen/logrus"
)

// Issuer creates certificates signed by a trusted local CA.
type Issuer interface {
	// Install makes sure the CA is in the system trust store.
	Install() error
	// Issue writes a certificate for hosts into dir and returns the paths.
	Issue(hosts []string, dir string) (certFile, keyFile string, err error)
}

// truststoreIssuer issues certificates with a CA rooted at caDir.
type truststoreIssuer struct {
	caDir string
	lib   *truststore.MkcertLib
}

// NewTruststoreIssuer returns an Issuer whose CA lives in caDir.
func NewTruststoreIssuer(caDir string) Issuer {
	return &truststoreIssuer{caDir: caDir}
}

func (i *truststoreIssuer) init() error {
	if i.lib != nil {
		return nil
	}
	if err := os.MkdirAll(i.caDir, 0o700); err != nil {
		return fmt.Errorf("create CA directory: %w", err)
	}
	// truststore reads the CA location from the environment.
	os.Setenv("CAROOT", i.caDir)
	lib, err := truststore.NewLib()
	if err != nil {
		return fmt.Errorf("initialize truststore: %w", err)
	}
	i.lib = lib
	return nil
}

func (i *truststoreIssuer) Install() error {
	if err := i.init(); err != nil {
		return err
	}
	return i.lib.Install()
}

func (i *truststoreIssuer) Issue(hosts []string, dir string) (string, string, error) {
	if err := i.init(); err != nil {
		return "", "", err
	}
	cert, err := i.lib.MakeCert(hosts, dir)
	if err != nil {
		return "", "", err
	}
	return cert.CertFile, cert.KeyFile, nil
}

// Store keeps the server certificate under dir/tls and the CA under dir/ca.
type Store struct {
	issuer    Issuer
	hostsFunc func() ([]string, error)

	tlsDir    string
	caFile    string
	certFile  string
	keyFile   string
	hostsFile string
}

// NewStore creates a store rooted at dir using the truststore issuer.
func NewStore(dir string) *Store {
	return NewStoreWithIssuer(dir, NewTruststoreIssuer(filepath.Join(dir, "ca")))
}

// NewStoreWithIssuer creates a store rooted at dir using issuer.
func NewStoreWithIssuer(dir string, issuer Issuer) *Store {
	tlsDir := filepath.Join(dir, "tls")
	return &Store{
		issuer:    issuer,
		hostsFunc: Hosts,
		tlsDir:    tlsDir,
		caFile:    filepath.Join(dir, "ca", "rootCA.pem"),
		certFile:  filepath.Join(tlsDir, "server.crt"),
		keyFile:   filepath.Join(tlsDir, "server.key"),
		hostsFile: filepath.Join(tlsDir, "hosts.txt"),
	}
}

// CertFile is the server certificate path.
func (s *Store) CertFile() string { return s.certFile }

// KeyFile is the server key path.
func (s *Store) KeyFile() string { return s.keyFile }

// CAFile is the CA certificate path.
func (s *Store) CAFile() string { return s.caFile }

// Ensure returns a certificate valid for the current hosts, issuing a new
// one if none exists or the hosts changed since the last issue.
func (s *Store) Ensure() (certFile, keyFile string, err error) {
	if err := os.MkdirAll(s.tlsDir, 0o700); err != nil {
		return "", "", fmt.Errorf("create TLS directory: %w", err)
	}

	hosts, err := s.hostsFunc()
	if err != nil {
		logrus.WithError(err).Warn("Failed to list LAN addresses, certificate covers localhost only")
		hosts = []string{"localhost", "127.0.0.1"}
	}
	log := logrus.WithField("hosts", hosts)

	switch {
	case !s.exists():
		log.Info("No certificate found, issuing one")
	case s.hostsChanged(hosts):
		log.Info("Network addresses changed, reissuing certificate")
	default:
		log.Debug("Using existing certificate")
		return s.certFile, s.keyFile, nil
	}

	if err := s.issue(hosts); err != nil {
		return "", "", err
	}
	return s.certFile, s.keyFile, nil
}

func (s *Store) issue(hosts []string) error {
	logrus.Info("Installing the local CA, you may be asked for your password")
	if err := s.issuer.Install(); err != nil {
		return fmt.Errorf("install CA: %w", err)
	}

	certFile, keyFile, err := s.issuer.Issue(hosts, s.tlsDir)
	if err != nil {
		return fmt.Errorf("issue certificate: %w", err)
	}
	if err := moveFile(certFile, s.certFile); err != nil {
		return fmt.Errorf("store certificate: %w", err)
	}
	if err := moveFile(keyFile, s.keyFile); err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	if err := s.writeHosts(hosts); err != nil {
		logrus.WithError(err).Warn("Failed to record certificate hosts")
	}

	entry := logrus.WithField("cert", s.certFile)
	if fp, err := s.CAFingerprint(); err == nil {
		entry = entry.WithField("caFingerprint", fp)
	}
	entry.Info("Certificate issued")
	return nil
}

func moveFile(from, to string) error {
	if from == to {
		return nil
	}
	return os.Rename(from, to)
}

func (s *Store) exists() bool {
	_, certErr := os.Stat(s.certFile)
	_, keyErr := os.Stat(s.keyFile)
	return certErr == nil && keyErr == nil
}

// hostsChanged compares hosts with the ones recorded at the last issue,
// ignoring order.
func (s *Store) hostsChanged(hosts []string) bool {
	recorded, err := s.readHosts()
	if err != nil {
		return true
	}
	a := slices.Clone(recorded)
	b := slices.Clone(hosts)
	slices.Sort(a)
	slices.Sort(b)
	return !slices.Equal(a, b)
}

func (s *Store) readHosts() ([]string, error) {
	f, err := os.Open(s.hostsFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if host := strings.TrimSpace(scanner.Text()); host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts, scanner.Err()
}

func (s *Store) writeHosts(hosts []string) error {
	return os.WriteFile(s.hostsFile, []byte(strings.Join(hosts, "\n")+"\n"), 0o600)
}

// ReadCACert returns the CA certificate PEM.
func (s *Store) ReadCACert() ([]byte, error) {
	return os.ReadFile(s.caFile)
}

// CAFingerprint returns the SHA-256 fingerprint of the CA certificate as
// colon separated hex.
func (s *Store) CAFingerprint() (string, error) {
	data, err := s.ReadCACert()
	if err != nil {
		return "", fmt.Errorf("read CA certificate: %w", err)
	}
	return Fingerprint(data)
}

// Fingerprint returns the SHA-256 fingerprint of the first certificate in a
// PEM document.
func Fingerprint(certPEM []byte) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", errors.New("no PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parse certificate: %w", err)
	}

	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}
