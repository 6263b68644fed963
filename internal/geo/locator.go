// Package geo resolves a visitor's country. The caller's address is looked up
// directly when it is public; otherwise the public IP is fetched first and
// the country resolved for that.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Default endpoints. CountryURL is a fmt template receiving the IP.
const (
	DefaultIPURL      = "https://api.ipify.org?format=json"
	DefaultCountryURL = "https://ipinfo.io/%s/json"
)

var (
	// ErrNoIP is returned when the IP endpoint answers without an address.
	ErrNoIP = errors.New("geo: empty ip")
	// ErrNoCountry is returned when the country endpoint answers without a country.
	ErrNoCountry = errors.New("geo: empty country")
)

// Locator is the geolocation capability the visitor tracker depends on.
type Locator interface {
	PublicIP(ctx context.Context) (string, error)
	Country(ctx context.Context, ip string) (string, error)
}

// IsPublicIP reports whether ip is a globally routable unicast address.
// Loopback, private, link-local and malformed addresses are not.
func IsPublicIP(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsGlobalUnicast() && !addr.IsPrivate()
}

// Resolve returns the country of clientIP. When clientIP is not public, as
// for a visitor on the same network as the server, the public IP reported by
// l is used instead.
func Resolve(ctx context.Context, l Locator, clientIP string) (string, error) {
	ip := strings.TrimSpace(clientIP)
	if !IsPublicIP(ip) {
		var err error
		if ip, err = l.PublicIP(ctx); err != nil {
			return "", err
		}
	}
	return l.Country(ctx, ip)
}

// HTTPLocator calls two JSON endpoints: IPURL returning {"ip": "..."} and
// CountryURL returning {"country": "..."}.
type HTTPLocator struct {
	Client     *http.Client
	IPURL      string
	CountryURL string
}

// NewHTTPLocator returns a locator with the given per-request timeout. Empty
// URLs select the defaults.
func NewHTTPLocator(ipURL, countryURL string, timeout time.Duration) *HTTPLocator {
	if ipURL == "" {
		ipURL = DefaultIPURL
	}
	if countryURL == "" {
		countryURL = DefaultCountryURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPLocator{
		Client:     &http.Client{Timeout: timeout},
		IPURL:      ipURL,
		CountryURL: countryURL,
	}
}

// PublicIP resolves the public IP the endpoint sees, which is the server's
// own egress address.
func (l *HTTPLocator) PublicIP(ctx context.Context) (string, error) {
	var body struct {
		IP string `json:"ip"`
	}
	if err := l.getJSON(ctx, "PublicIP", l.IPURL, &body); err != nil {
		return "", err
	}
	ip := strings.TrimSpace(body.IP)
	if ip == "" {
		return "", ErrNoIP
	}
	return ip, nil
}

// Country resolves the ISO country code of ip.
func (l *HTTPLocator) Country(ctx context.Context, ip string) (string, error) {
	target := l.CountryURL
	if strings.Contains(target, "%s") {
		target = fmt.Sprintf(target, url.PathEscape(ip))
	}
	var body struct {
		Country string `json:"country"`
	}
	if err := l.getJSON(ctx, "Country", target, &body); err != nil {
		return "", err
	}
	c := strings.TrimSpace(body.Country)
	if c == "" {
		return "", ErrNoCountry
	}
	return c, nil
}

func (l *HTTPLocator) getJSON(ctx context.Context, op, target string, dst any) error {
	ctx, span := otel.Tracer("geo").Start(ctx, op, trace.WithAttributes(
		attribute.String("http.url", target),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return err
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("geo: %s returned %d", op, resp.StatusCode)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(dst); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return fmt.Errorf("geo: decode %s: %w", op, err)
	}
	return nil
}
