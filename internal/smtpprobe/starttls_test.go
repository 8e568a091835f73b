package smtpprobe

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veriflow/engine/internal/model"
)

// selfSignedCert builds an in-memory cert/key pair for the fake server —
// no files on disk, no external CA, just enough for tls.Config.Certificates.
func selfSignedCert(t *testing.T) tls.Certificate {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mx.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return cert
}

// fakeStarttlsServer speaks just enough real SMTP-over-STARTTLS to drive
// smtpprobe.session() through a genuine TLS handshake: banner, EHLO
// advertising STARTTLS, the handshake itself, a second EHLO over the
// upgraded socket, MAIL FROM, two RCPT TOs, QUIT. accept controls whether
// RCPT TO for the "real" mailbox is accepted or rejected.
func fakeStarttlsServer(t *testing.T, accept bool) (addr, port string) {
	cert := selfSignedCert(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serveFakeSession(t, conn, &tls.Config{Certificates: []tls.Certificate{cert}}, accept)
	}()

	_, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return "127.0.0.1", p
}

func serveFakeSession(t *testing.T, conn net.Conn, tlsCfg *tls.Config, accept bool) {
	w := func(line string) { conn.Write([]byte(line + "\r\n")) }
	r := bufio.NewReader(conn)
	readLine := func() string {
		line, _ := r.ReadString('\n')
		return strings.TrimRight(line, "\r\n")
	}

	w("220 mx.test ESMTP ready")

	_ = readLine() // EHLO ...
	w("250-mx.test at your service")
	w("250 STARTTLS")

	starttls := readLine()
	if !strings.HasPrefix(strings.ToUpper(starttls), "STARTTLS") {
		return
	}
	w("220 go ahead")

	tlsConn := tls.Server(conn, tlsCfg)
	if err := tlsConn.Handshake(); err != nil {
		t.Logf("fake server handshake failed: %v", err)
		return
	}

	tr := bufio.NewReader(tlsConn)
	tw := func(line string) { tlsConn.Write([]byte(line + "\r\n")) }
	readTLSLine := func() string {
		line, _ := tr.ReadString('\n')
		return strings.TrimRight(line, "\r\n")
	}

	_ = readTLSLine() // EHLO again, over TLS — proves the socket survived
	tw("250 mx.test at your service, now encrypted")

	_ = readTLSLine() // MAIL FROM
	tw("250 OK")

	_ = readTLSLine() // RCPT TO (real)
	if accept {
		tw("250 OK")
	} else {
		tw("550 5.1.1 user unknown")
	}

	_ = readTLSLine() // RCPT TO (random probe)
	tw("550 5.1.1 user unknown")

	_ = readTLSLine() // QUIT
	tw("221 bye")
}

func TestProbeSurvivesStartTLSUpgrade(t *testing.T) {
	host, port := fakeStarttlsServer(t, true)

	p := New(Config{
		HeloDomain: "probe.test",
		MailFrom:   "probe@test",
		Port:       port,
		IOTimeout:  3 * time.Second,
	}, nil, nil)

	v := p.probeHost(host, "user", "example.com")

	require.Equal(t, model.SmtpAccepted, v.Kind)
}

func TestProbeReportsRejectionAfterStartTLSUpgrade(t *testing.T) {
	host, port := fakeStarttlsServer(t, false)

	p := New(Config{
		HeloDomain: "probe.test",
		MailFrom:   "probe@test",
		Port:       port,
		IOTimeout:  3 * time.Second,
	}, nil, nil)

	v := p.probeHost(host, "user", "example.com")

	require.Equal(t, model.SmtpRejected, v.Kind)
}
