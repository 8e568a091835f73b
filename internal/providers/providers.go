// Package providers probes third-party authentication/lookup endpoints
// that leak whether a given email address has an account: Microsoft,
// Google, Apple, Gravatar, GitHub, keys.openpgp.org, and HaveIBeenPwned.
// Each family is globally serialized by its own spacer, using a single
// shared fasthttp.Client the way the teacher's Fiber stack already does
// for outbound HTTP.
package providers

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/veriflow/engine/internal/model"
)

// Config carries per-provider network settings.
type Config struct {
	Timeout    time.Duration
	HIBPAPIKey string
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 6 * time.Second
	}
}

// Probes runs the seven provider probes, each through its own
// minimum-spacing queue (Microsoft 500ms, Gravatar 200ms, PGP 300ms,
// Google 3s, Apple 2s, GitHub 6.5s, HIBP 1.6s).
type Probes struct {
	cfg    Config
	client *fasthttp.Client
	log    *logrus.Entry

	microsoft *spacer
	google    *spacer
	apple     *spacer
	gravatar  *spacer
	github    *spacer
	pgp       *spacer
	hibp      *spacer
}

// New builds a Probes set backed by a single shared fasthttp.Client.
func New(cfg Config, log *logrus.Logger) *Probes {
	cfg.setDefaults()
	if log == nil {
		log = logrus.New()
	}
	return &Probes{
		cfg: cfg,
		client: &fasthttp.Client{
			MaxConnsPerHost: 8,
			ReadTimeout:     cfg.Timeout,
			WriteTimeout:    cfg.Timeout,
		},
		log:       log.WithField("component", "providers"),
		microsoft: newSpacer(500 * time.Millisecond),
		google:    newSpacer(3 * time.Second),
		apple:     newSpacer(2 * time.Second),
		gravatar:  newSpacer(200 * time.Millisecond),
		github:    newSpacer(6500 * time.Millisecond),
		pgp:       newSpacer(300 * time.Millisecond),
		hibp:      newSpacer(1600 * time.Millisecond),
	}
}

func (p *Probes) do(req *fasthttp.Request, resp *fasthttp.Response) error {
	return p.client.DoTimeout(req, resp, p.cfg.Timeout)
}

// Microsoft checks login.microsoftonline.com's GetCredentialType endpoint.
func (p *Probes) Microsoft(email string) model.Tri {
	p.microsoft.wait()

	body, err := json.Marshal(map[string]string{"Username": email})
	if err != nil {
		return model.Unknown
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("https://login.microsoftonline.com/common/GetCredentialType")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := p.do(req, resp); err != nil {
		p.log.WithError(err).Debug("microsoft probe failed")
		return model.Unknown
	}
	if resp.StatusCode() != 200 {
		return model.Unknown
	}

	var parsed struct {
		IfExistsResult int `json:"IfExistsResult"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return model.Unknown
	}
	switch parsed.IfExistsResult {
	case 0, 5, 6:
		return model.True
	case 1:
		return model.False
	default:
		return model.Unknown
	}
}

// Google checks android.clients.google.com/auth, the endpoint Android
// devices use to validate a Google account during setup.
func (p *Probes) Google(email string) model.Tri {
	p.google.wait()

	form := url.Values{
		"Email":                         {email},
		"Passwd":                        {"invalid-probe-password"},
		"service":                       {"ac2dm"},
		"source":                        {"android"},
		"androidId":                     {"0000000000000000"},
		"device_country":                {"us"},
		"operatorCountry":               {"us"},
		"lang":                          {"en"},
		"sdk_version":                   {"17"},
		"google_play_services_version":  {"1"},
	}.Encode()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("https://android.clients.google.com/auth")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBodyString(form)

	if err := p.do(req, resp); err != nil {
		p.log.WithError(err).Debug("google probe failed")
		return model.Unknown
	}

	body := string(resp.Body())
	switch {
	case strings.Contains(body, "NeedsBrowser"), strings.Contains(body, "DeviceManagementRequiredOrSyncDisabled"):
		return model.True
	case strings.Contains(body, "INVALID_EMAIL"):
		return model.False
	case strings.Contains(body, "BadAuthentication") && isConsumerGoogleDomain(email):
		// For a personal gmail/googlemail address this still means
		// "account exists, wrong password". Ambiguous for Workspace
		// domains, so it's only trusted for the two consumer domains.
		return model.True
	default:
		return model.Unknown
	}
}

func isConsumerGoogleDomain(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	return domain == "gmail.com" || domain == "googlemail.com"
}

// Apple checks appleid.apple.com's federate endpoint.
func (p *Probes) Apple(email string) model.Tri {
	p.apple.wait()

	body, err := json.Marshal(map[string]any{
		"accountName": email,
		"rememberMe":  false,
	})
	if err != nil {
		return model.Unknown
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("https://appleid.apple.com/appleauth/auth/federate")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := p.do(req, resp); err != nil {
		p.log.WithError(err).Debug("apple probe failed")
		return model.Unknown
	}
	if resp.StatusCode() != 200 {
		return model.Unknown
	}
	if strings.Contains(string(resp.Body()), `"hasSWP":true`) {
		return model.True
	}
	return model.False
}

// Gravatar HEADs the MD5-hashed-email avatar URL with d=404 so Gravatar
// answers 404 instead of serving a default placeholder image.
func (p *Probes) Gravatar(email string) model.Tri {
	p.gravatar.wait()

	hash := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	uri := fmt.Sprintf("https://gravatar.com/avatar/%s?d=404", hex.EncodeToString(hash[:]))

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodHead)

	if err := p.do(req, resp); err != nil {
		p.log.WithError(err).Debug("gravatar probe failed")
		return model.Unknown
	}
	switch resp.StatusCode() {
	case 200:
		return model.True
	case 404:
		return model.False
	default:
		return model.Unknown
	}
}

// GitHub searches api.github.com/search/users for the email. The caller
// skips this probe entirely on multi-address batches since its rate
// limit is far tighter than the others.
func (p *Probes) GitHub(email string) model.Tri {
	p.github.wait()

	uri := fmt.Sprintf("https://api.github.com/search/users?q=%s+in:email", url.QueryEscape(email))

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/vnd.github+json")

	if err := p.do(req, resp); err != nil {
		p.log.WithError(err).Debug("github probe failed")
		return model.Unknown
	}
	if resp.StatusCode() != 200 {
		return model.Unknown
	}

	var parsed struct {
		TotalCount int `json:"total_count"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return model.Unknown
	}
	if parsed.TotalCount > 0 {
		return model.True
	}
	return model.False
}

// PGP HEADs keys.openpgp.org's by-email lookup.
func (p *Probes) PGP(email string) model.Tri {
	p.pgp.wait()

	uri := "https://keys.openpgp.org/vks/v1/by-email/" + url.QueryEscape(email)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodHead)

	if err := p.do(req, resp); err != nil {
		p.log.WithError(err).Debug("pgp probe failed")
		return model.Unknown
	}
	switch resp.StatusCode() {
	case 200:
		return model.True
	case 404:
		return model.False
	default:
		return model.Unknown
	}
}

// HIBP queries haveibeenpwned.com's breachedaccount endpoint. When no
// API key is configured it returns Unknown without waiting on the spacer
// or sending a request.
func (p *Probes) HIBP(email string) model.Tri {
	if p.cfg.HIBPAPIKey == "" {
		return model.Unknown
	}
	p.hibp.wait()

	uri := "https://haveibeenpwned.com/api/v3/breachedaccount/" + url.QueryEscape(email) + "?truncateResponse=true"

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("hibp-api-key", p.cfg.HIBPAPIKey)
	req.Header.Set("user-agent", "veriflow-engine")

	if err := p.do(req, resp); err != nil {
		p.log.WithError(err).Debug("hibp probe failed")
		return model.Unknown
	}
	switch resp.StatusCode() {
	case 200:
		return model.True
	case 404:
		return model.False
	default:
		return model.Unknown
	}
}
