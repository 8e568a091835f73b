// Package signals collects the domain-level evidence the fusion engine
// weighs alongside the SMTP verdict: SPF/DMARC/MTA-STS/BIMI presence, DKIM
// selectors, website liveness and parked-domain detection, registration
// age, and DNSBL membership. Every collector is independent, has its own
// timeout, and degrades to model.Unknown rather than guessing.
package signals

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/sirupsen/logrus"

	"github.com/veriflow/engine/internal/dnsresolver"
	"github.com/veriflow/engine/internal/model"
)

// Config tunes the collectors' network behaviour.
type Config struct {
	Timeout      time.Duration
	CacheTTL     time.Duration
	DKIMCacheTTL time.Duration
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 10 * time.Minute
	}
	if c.DKIMCacheTTL == 0 {
		c.DKIMCacheTTL = 30 * time.Minute
	}
}

// Collector gathers domain-signals evidence.
type Collector struct {
	cfg      Config
	resolver *dnsresolver.Resolver
	http     *http.Client
	log      *logrus.Entry

	mu        sync.RWMutex
	intel     map[string]intelEntry
	dkimCache map[string]dkimEntry
}

type intelEntry struct {
	result    model.DomainIntel
	expiresAt time.Time
}

type dkimEntry struct {
	selectors []string
	expiresAt time.Time
}

// New builds a Collector. Website/RDAP probes share one http.Client with a
// short timeout and TLS verification disabled for liveness purposes only
// (we are checking if something answers, not asserting trust).
func New(cfg Config, resolver *dnsresolver.Resolver, log *logrus.Logger) *Collector {
	cfg.setDefaults()
	if log == nil {
		log = logrus.New()
	}
	return &Collector{
		cfg:      cfg,
		resolver: resolver,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		log:       log.WithField("component", "signals"),
		intel:     make(map[string]intelEntry),
		dkimCache: make(map[string]dkimEntry),
	}
}

// dkimSelectors is the fixed list of common selectors scanned per spec.md §4.4.
var dkimSelectors = []string{
	"default", "google", "selector1", "selector2", "k1", "k2",
	"dkim", "mail", "smtp", "mandrill", "sendgrid", "s1", "s2",
}

var parkedIndicators = []string{
	"buy this domain", "domain is for sale", "this domain is parked",
	"domain parking", "is for sale", "future home of", "inquire about this domain",
	"domain may be for sale", "this web page is parked",
}

// Collect runs every collector for domain and returns the merged intel.
// Cached for CacheTTL (DKIM separately, for DKIMCacheTTL) as spec.md §3
// prescribes.
func (c *Collector) Collect(ctx context.Context, domain string, firstMX string) model.DomainIntel {
	if cached, ok := c.lookupIntel(domain); ok {
		return cached
	}

	var wg sync.WaitGroup
	intel := model.DomainIntel{}
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		spf, dmarc := c.checkSPFDMARC(ctx, domain)
		mu.Lock()
		intel.SPFPresent, intel.DMARCPresent = spf, dmarc
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		mtaSts, bimi := c.checkMTASTSBIMI(ctx, domain)
		mu.Lock()
		intel.MTASTSPresent, intel.BIMIPresent = mtaSts, bimi
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		selectors := c.DKIMSelectors(ctx, domain)
		mu.Lock()
		intel.DKIMSelectors = selectors
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		alive, parked := c.checkWebsite(ctx, domain)
		mu.Lock()
		intel.WebsiteAlive, intel.IsParked = alive, parked
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		age := c.domainAgeDays(ctx, domain)
		mu.Lock()
		intel.DomainAgeDays = age
		mu.Unlock()
	}()

	if firstMX != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listed, zones := c.checkDNSBL(ctx, firstMX)
			mu.Lock()
			intel.Blacklisted, intel.BlacklistZones = listed, zones
			mu.Unlock()
		}()
	}

	wg.Wait()
	c.storeIntel(domain, intel)
	return intel
}

func (c *Collector) checkSPFDMARC(ctx context.Context, domain string) (spf, dmarc model.Tri) {
	return c.txtStartsWith(ctx, domain, "v=spf1"), c.txtStartsWith(ctx, "_dmarc."+domain, "v=dmarc1")
}

func (c *Collector) txtStartsWith(ctx context.Context, name, prefix string) model.Tri {
	txts, err := c.resolver.LookupTXT(ctx, name)
	switch err {
	case nil:
		for _, t := range txts {
			if strings.HasPrefix(strings.ToLower(t), prefix) {
				return model.True
			}
		}
		return model.False
	case dnsresolver.ErrNotFound:
		return model.False
	default:
		return model.Unknown
	}
}

func (c *Collector) checkMTASTSBIMI(ctx context.Context, domain string) (mtaSts, bimi model.Tri) {
	mtaSts = c.txtPresence(ctx, "_mta-sts."+domain)
	bimi = c.txtPresence(ctx, "_bimi."+domain)
	return mtaSts, bimi
}

func (c *Collector) txtPresence(ctx context.Context, name string) model.Tri {
	_, err := c.resolver.LookupTXT(ctx, name)
	switch err {
	case nil:
		return model.True
	case dnsresolver.ErrNotFound:
		return model.False
	default:
		return model.Unknown
	}
}

// DKIMSelectors scans the fixed selector list and returns the ones that
// resolve to a TXT record. Cached separately from the rest of the intel
// bundle per spec.md §3 (30 min vs 10 min TTL).
func (c *Collector) DKIMSelectors(ctx context.Context, domain string) []string {
	if cached, ok := c.lookupDKIM(domain); ok {
		return cached
	}

	var mu sync.Mutex
	var present []string
	var wg sync.WaitGroup
	for _, selector := range dkimSelectors {
		wg.Add(1)
		go func(selector string) {
			defer wg.Done()
			name := selector + "._domainkey." + domain
			if _, err := c.resolver.LookupTXT(ctx, name); err == nil {
				mu.Lock()
				present = append(present, selector)
				mu.Unlock()
			}
		}(selector)
	}
	wg.Wait()

	c.storeDKIM(domain, present)
	return present
}

func (c *Collector) checkWebsite(ctx context.Context, domain string) (alive, parked model.Tri) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+domain, nil)
	if err != nil {
		return model.Unknown, model.Unknown
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return model.Unknown, model.Unknown
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.False, model.Unknown
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 10*1024))
	folded := strings.ToLower(string(body))
	for _, phrase := range parkedIndicators {
		if strings.Contains(folded, phrase) {
			return model.True, model.True
		}
	}
	return model.True, model.False
}

// domainAgeDays consults rdap.org first; if RDAP yields no age (request
// error, non-200 status, undecodable body, or no parseable registration
// event) it falls back to a raw WHOIS query via likexian/whois + likexian/whois-parser,
// the way the teacher's verification_controller.go enriches results with
// whois.Whois output.
func (c *Collector) domainAgeDays(ctx context.Context, domain string) *int {
	if age, ok := c.rdapAgeDays(ctx, domain); ok {
		return &age
	}
	if age, ok := c.whoisAgeDays(domain); ok {
		return &age
	}
	return nil
}

type rdapEvent struct {
	EventAction string `json:"eventAction"`
	EventDate   string `json:"eventDate"`
}

type rdapResponse struct {
	Events []rdapEvent `json:"events"`
}

func (c *Collector) rdapAgeDays(ctx context.Context, domain string) (int, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://rdap.org/domain/"+domain, nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("Accept", "application/rdap+json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return 0, false
	}

	var parsed rdapResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return 0, false
	}
	for _, ev := range parsed.Events {
		if ev.EventAction != "registration" {
			continue
		}
		t, err := time.Parse(time.RFC3339, ev.EventDate)
		if err != nil {
			return 0, false
		}
		return int(time.Since(t).Hours() / 24), true
	}
	return 0, false
}

func (c *Collector) whoisAgeDays(domain string) (int, bool) {
	raw, err := whois.Whois(domain)
	if err != nil {
		return 0, false
	}
	parsed, err := whoisparser.Parse(raw)
	if err != nil || parsed.Domain == nil || parsed.Domain.CreatedDateInTime == nil {
		return 0, false
	}
	return int(time.Since(*parsed.Domain.CreatedDateInTime).Hours() / 24), true
}

// dnsblZones are the blacklist zones checked for the first MX host's IP,
// per spec.md §4.4.
var dnsblZones = []string{"zen.spamhaus.org", "bl.spamcop.net", "b.barracudacentral.org"}

func (c *Collector) checkDNSBL(ctx context.Context, mxHost string) (model.Tri, []string) {
	ips, err := lookupIPs(ctx, mxHost)
	if err != nil || len(ips) == 0 {
		return model.Unknown, nil
	}
	reversed := reverseIPv4(ips[0])
	if reversed == "" {
		return model.Unknown, nil
	}

	var hits []string
	for _, zone := range dnsblZones {
		if _, err := c.resolver.LookupTXT(ctx, reversed+"."+zone); err == nil {
			hits = append(hits, zone)
			continue
		}
	}
	if len(hits) > 0 {
		return model.True, hits
	}
	return model.False, nil
}

func reverseIPv4(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ""
	}
	return fmt.Sprintf("%s.%s.%s.%s", parts[3], parts[2], parts[1], parts[0])
}

func (c *Collector) lookupIntel(domain string) (model.DomainIntel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.intel[domain]
	if !ok || time.Now().After(entry.expiresAt) {
		return model.DomainIntel{}, false
	}
	return entry.result, true
}

func (c *Collector) storeIntel(domain string, result model.DomainIntel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intel[domain] = intelEntry{result: result, expiresAt: time.Now().Add(c.cfg.CacheTTL)}
}

func (c *Collector) lookupDKIM(domain string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.dkimCache[domain]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.selectors, true
}

func (c *Collector) storeDKIM(domain string, selectors []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dkimCache[domain] = dkimEntry{selectors: selectors, expiresAt: time.Now().Add(c.cfg.DKIMCacheTTL)}
}

// Sweep evicts expired intel/DKIM cache entries; called from the
// background worker's ~60s sweep (spec.md §5).
func (c *Collector) Sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.intel {
		if now.After(v.expiresAt) {
			delete(c.intel, k)
		}
	}
	for k, v := range c.dkimCache {
		if now.After(v.expiresAt) {
			delete(c.dkimCache, k)
		}
	}
}

func lookupIPs(ctx context.Context, host string) ([]string, error) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			ips = append(ips, ip.String())
		}
	}
	return ips, nil
}
