// Package smtpprobe walks the SMTP mailbox-existence protocol against a
// target host: banner, EHLO, opportunistic STARTTLS, a second EHLO over
// TLS, MAIL FROM, two RCPT TO probes (the real address and a high-entropy
// random one) used to detect catch-all servers, then QUIT. It never raises
// on a probe failure — every outcome is folded into a model.SmtpVerdict.
package smtpprobe

import (
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veriflow/engine/internal/model"
)

// state names the stage of the session, per spec.md §9's explicit tagged
// state machine. It exists for logs/diagnostics; transitions are driven
// directly by the parsed SMTP reply codes in the functions below.
type state string

const (
	stateBanner   state = "banner"
	stateEhlo     state = "ehlo"
	stateTLS      state = "starttls"
	stateEhlo2    state = "ehlo2"
	stateMail     state = "mail"
	stateRcptReal state = "rcpt-real"
	stateRcptFake state = "rcpt-fake"
	stateQuit     state = "quit"
	stateDone     state = "done"
)

// userUnknownPhrases classifies a 5xx RCPT response as a genuine
// nonexistent-mailbox rejection rather than a policy/reputation block,
// grounded on ahmadpiran-mailvetter's IsNoSuchUserError keyword set.
var userUnknownPhrases = []string{
	"5.1.1", "user unknown", "does not exist", "mailbox not found",
	"no such user", "undeliverable", "recipient rejected", "invalid mailbox",
	"not a valid mailbox", "mailbox unavailable", "unrouteable address",
	"unknown user", "bad destination", "address rejected", "no mailbox here",
}

// ServerStats lets the prober consult and update the per-MX-host
// rolling-behaviour cache (spec.md §4.7) without smtpprobe depending on
// the serverstats package directly.
type ServerStats interface {
	Record(host string, kind model.SmtpVerdictKind)
	IsSuspectedCatchAll(host string) bool
}

// Config tunes protocol parameters, all of which spec.md §6 lists as
// runtime-configurable.
type Config struct {
	HeloDomain  string
	MailFrom    string
	IOTimeout   time.Duration
	DialTimeout time.Duration

	// Port overrides the SMTP port, defaulting to 25. Exists so tests
	// can point the prober at a local fake-server listener instead of
	// a real MX host.
	Port string
}

func (c *Config) setDefaults() {
	if c.HeloDomain == "" {
		c.HeloDomain = "probe.veriflow.local"
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = 8 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 8 * time.Second
	}
	if c.Port == "" {
		c.Port = "25"
	}
}

// Prober runs the mailbox-existence probe.
type Prober struct {
	cfg   Config
	stats ServerStats
	log   *logrus.Entry
}

// New builds a Prober. stats may be nil, in which case server-behaviour
// reclassification is skipped.
func New(cfg Config, stats ServerStats, log *logrus.Logger) *Prober {
	cfg.setDefaults()
	if log == nil {
		log = logrus.New()
	}
	return &Prober{cfg: cfg, stats: stats, log: log.WithField("component", "smtpprobe")}
}

// Probe tries hosts in order (at most the first two, per spec.md §4.3) and
// returns the first verdict that isn't model.SmtpError. If every host
// errors, it returns the last error verdict.
func (p *Prober) Probe(hosts []string, localPart, domain string) model.SmtpVerdict {
	if len(hosts) == 0 {
		return model.SmtpVerdict{Kind: model.SmtpNone}
	}

	tryHosts := hosts
	if len(tryHosts) > 2 {
		tryHosts = tryHosts[:2]
	}

	var last model.SmtpVerdict
	for _, host := range tryHosts {
		v := p.probeHost(host, localPart, domain)
		last = v
		if v.Kind != model.SmtpError {
			p.reclassify(&v)
			return v
		}
	}
	p.reclassify(&last)
	return last
}

// reclassify applies the server-behaviour override: a host flagged
// suspected-catch-all by the rolling counter re-labels a bare "accepted"
// verdict, per spec.md §4.3's last bullet.
func (p *Prober) reclassify(v *model.SmtpVerdict) {
	if p.stats == nil || v.Host == "" {
		return
	}
	if v.Kind == model.SmtpAccepted && p.stats.IsSuspectedCatchAll(v.Host) {
		v.Kind = model.SmtpCatchAll
	}
	p.stats.Record(v.Host, v.Kind)
}

func (p *Prober) probeHost(host, localPart, domain string) model.SmtpVerdict {
	v, err := p.session(host, localPart, domain, false)
	if err == nil {
		return v
	}

	if v.Kind == model.SmtpGreylisted {
		time.Sleep(5 * time.Second)
		retry, _ := p.session(host, localPart, domain, true)
		return retry
	}

	p.log.WithError(err).WithField("host", host).Debug("smtp probe failed")
	return model.SmtpVerdict{Kind: model.SmtpError, Host: host}
}

// session runs exactly one connection's worth of the protocol. It returns
// a verdict and, for anything that isn't a clean terminal verdict
// (accepted/rejected/catch-all), a non-nil error describing why — callers
// use the error to decide whether a greylist retry applies.
func (p *Prober) session(host, localPart, domain string, isRetry bool) (model.SmtpVerdict, error) {
	addr := net.JoinHostPort(host, p.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, p.cfg.DialTimeout)
	if err != nil {
		return model.SmtpVerdict{Kind: model.SmtpError, Host: host}, err
	}
	defer conn.Close()

	tp := textproto.NewConn(conn)
	defer tp.Close()

	st := stateBanner
	conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout))
	_, bannerText, err := tp.ReadResponse(220)
	if err != nil {
		return model.SmtpVerdict{Kind: model.SmtpError, Host: host}, fmt.Errorf("banner: %w", err)
	}

	st = stateEhlo
	conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout))
	ehloLines, err := ehlo(tp, p.cfg.HeloDomain)
	if err != nil {
		return model.SmtpVerdict{Kind: model.SmtpError, Host: host}, fmt.Errorf("%s: %w", st, err)
	}

	if supportsStartTLS(ehloLines) {
		st = stateTLS
		conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout))
		if id, err := tp.Cmd("STARTTLS"); err == nil {
			tp.StartResponse(id)
			_, _, rerr := tp.ReadResponse(220)
			tp.EndResponse(id)
			if rerr == nil {
				tlsConn := tls.Client(conn, &tls.Config{InsecureSkipVerify: true, ServerName: host})
				if herr := tlsConn.Handshake(); herr == nil {
					// The framer re-attaches to the upgraded socket by
					// building a fresh Conn over tlsConn. The old plaintext
					// tp wraps this same raw conn the handshake just
					// upgraded in place, so it must not be Closed here —
					// that would sever the socket tlsConn now depends on.
					// The reference is simply replaced. At return the
					// deferred Close registered below for the new tp runs
					// first; the earlier deferred Closes of the old tp and
					// of conn then run against the already-closed socket,
					// which only returns an error that is ignored.
					tp = textproto.NewConn(tlsConn)
					defer tp.Close()
					conn = tlsConn

					st = stateEhlo2
					conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout))
					if _, err := ehlo(tp, p.cfg.HeloDomain); err != nil {
						return model.SmtpVerdict{Kind: model.SmtpError, Host: host}, fmt.Errorf("%s: %w", st, err)
					}
				}
				// STARTTLS refused or handshake failed: fall through to
				// plaintext MAIL on the original connection (opportunistic).
			}
		}
	}

	st = stateMail
	conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout))
	mailID, err := tp.Cmd("MAIL FROM:<%s>", p.cfg.MailFrom)
	if err != nil {
		return model.SmtpVerdict{Kind: model.SmtpError, Host: host}, fmt.Errorf("%s: %w", st, err)
	}
	tp.StartResponse(mailID)
	_, _, err = tp.ReadResponse(250)
	tp.EndResponse(mailID)
	if err != nil {
		return model.SmtpVerdict{Kind: model.SmtpError, Host: host}, fmt.Errorf("%s: %w", st, err)
	}

	st = stateRcptReal
	conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout))
	realStart := time.Now()
	realCode, realMsg, realErr := rcpt(tp, localPart+"@"+domain)
	realLatency := time.Since(realStart)

	if realErr != nil {
		return model.SmtpVerdict{Kind: model.SmtpError, Host: host}, fmt.Errorf("%s: %w", st, realErr)
	}

	if realCode/100 == 4 && !isRetry {
		return model.SmtpVerdict{Kind: model.SmtpGreylisted, Host: host, Code: realCode, BannerText: bannerText}, errGreylist
	}

	if realCode/100 != 2 {
		if realCode/100 == 5 && isUserUnknown(realMsg) {
			return model.SmtpVerdict{Kind: model.SmtpRejected, Host: host, Code: realCode, BannerText: bannerText}, nil
		}
		return model.SmtpVerdict{Kind: model.SmtpError, Host: host, Code: realCode, BannerText: bannerText}, fmt.Errorf("%s: code %d", st, realCode)
	}

	st = stateRcptFake
	conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout))
	randomLocal := randomLocalPart()
	randomStart := time.Now()
	randomCode, _, _ := rcpt(tp, randomLocal+"@"+domain)
	randomLatency := time.Since(randomStart)

	st = stateQuit
	conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout))
	tp.Cmd("QUIT")
	st = stateDone

	verdict := model.SmtpVerdict{
		Host:          host,
		Code:          realCode,
		BannerText:    bannerText,
		RealLatency:   realLatency,
		RandomLatency: randomLatency,
		HasLatencies:  true,
	}
	if randomCode/100 == 2 {
		verdict.Kind = model.SmtpCatchAll
	} else {
		verdict.Kind = model.SmtpAccepted
	}
	return verdict, nil
}

var errGreylist = errors.New("smtpprobe: greylisted")

func ehlo(tp *textproto.Conn, domain string) ([]string, error) {
	id, err := tp.Cmd("EHLO %s", domain)
	if err != nil {
		return nil, err
	}
	tp.StartResponse(id)
	defer tp.EndResponse(id)
	_, msg, err := tp.ReadResponse(250)
	if err != nil {
		// Some servers reject EHLO; HELO is the RFC 821 fallback.
		id2, err2 := tp.Cmd("HELO %s", domain)
		if err2 != nil {
			return nil, err2
		}
		tp.StartResponse(id2)
		defer tp.EndResponse(id2)
		_, msg, err = tp.ReadResponse(250)
		if err != nil {
			return nil, err
		}
		return strings.Split(msg, "\n"), nil
	}
	return strings.Split(msg, "\n"), nil
}

func supportsStartTLS(ehloLines []string) bool {
	for _, l := range ehloLines {
		if strings.EqualFold(strings.TrimSpace(l), "STARTTLS") {
			return true
		}
	}
	return false
}

// rcpt issues RCPT TO and returns the response code/text without treating
// a non-2xx reply as an error — only a transport failure is an error here.
func rcpt(tp *textproto.Conn, address string) (int, string, error) {
	id, err := tp.Cmd("RCPT TO:<%s>", address)
	if err != nil {
		return 0, "", err
	}
	tp.StartResponse(id)
	defer tp.EndResponse(id)
	return tp.ReadCodeLine(0)
}

func isUserUnknown(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range userUnknownPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func randomLocalPart() string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return "xvrf-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + string(b) + "-nonexist"
}
