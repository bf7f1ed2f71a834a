package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/fetch"
	"github.com/Sriram-PR/supplier-sync/pkg/metrics"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/sanitize"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// Login chain step names, used in diagnostics, logs and metrics
const (
	StepGuest      = "guest"
	StepSSO        = "sso"
	StepStateToken = "state_token"
	StepIntrospect = "introspect"
	StepAuthn      = "authn"
	StepStepUp     = "step_up"
	StepAssert     = "assert"
	StepValidate   = "validate"
	StepCookie     = "cookie"
	StepOverride   = "override"
)

// CSRFHeader carries the CSRF token on every authenticated request
const CSRFHeader = "x-csrf-token"

var (
	ssoPattern        = `redirectTo.:.(.*?).,.*csrfToken.:.([0-9a-zA-Z]*)`
	stateTokenPattern = `stateToken.:.(.*?).,`
	authnPattern      = `status.:.SUCCESS`
	samlPattern       = `SAMLResponse.*?value=.(.*?)"`
	relayStatePattern = `RelayState.*?value=.(.*?)"`
	customerPattern   = `opCo.:.([0-9a-zA-Z]*).*customerId.:.([0-9a-zA-Z]*)`
	overridePattern   = `([0-9]+)-([0-9]+)`
)

var patterns = mustCompile(
	ssoPattern, stateTokenPattern, authnPattern, samlPattern,
	relayStatePattern, customerPattern, overridePattern,
)

func mustCompile(exprs ...string) map[string]*regexp.Regexp {
	compiled, err := utils.CompileRegexPatterns(exprs)
	if err != nil {
		panic(err)
	}
	out := make(map[string]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[expr] = compiled[i]
	}
	return out
}

// Acquirer walks a supplier's login chain on one session and produces the
// AuthToken that authorizes the crawl requests of that session.
type Acquirer struct {
	session     *fetch.Session
	supplierKey string
	cfg         config.SupplierConfig
	log         *logrus.Entry
}

// NewAcquirer creates an Acquirer. cfg must be a validated supplier config.
func NewAcquirer(sess *fetch.Session, supplierKey string, cfg config.SupplierConfig, log *logrus.Entry) *Acquirer {
	return &Acquirer{
		session:     sess,
		supplierKey: supplierKey,
		cfg:         cfg,
		log:         log.WithFields(logrus.Fields{"component": "session", "supplier": supplierKey}),
	}
}

// Acquire runs the login chain once, strictly in order and without retries.
// Only the authn step is checked: its failure returns ErrLoginFailed. Every
// other step degrades to empty values, which Diagnostics reports.
// A non-empty override of the form "<opco>-<customer>" replaces the opCo and
// customer id found by the validate step.
func (a *Acquirer) Acquire(ctx context.Context, creds models.Credentials, override string) (*models.AuthToken, Diagnostics, error) {
	var diag Diagnostics
	eps := a.cfg.Endpoints

	// 1. Guest bootstrap sets the first session cookies.
	a.send(ctx, StepGuest, a.session.R().SetBody(map[string]any{}), http.MethodPost, eps.Guest)

	// 2. SSO start: redirect target and CSRF token.
	body := a.send(ctx, StepSSO, a.session.R().SetBody(map[string]any{}), http.MethodPost, eps.SSO)
	m := a.extract(&diag, StepSSO, ssoPattern, body, "redirectTo", "csrfToken")
	redirectTo := strings.ReplaceAll(m["redirectTo"], `\/`, "/")
	csrfToken := m["csrfToken"]

	// 3. The login page embeds the state token with escaped dashes.
	body = ""
	if redirectTo != "" {
		body = a.send(ctx, StepStateToken, a.session.R(), http.MethodGet, redirectTo)
	}
	m = a.extract(&diag, StepStateToken, stateTokenPattern, body, "stateToken")
	stateToken := strings.ReplaceAll(m["stateToken"], `\x2D`, "-")

	origin := a.loginOrigin(redirectTo)
	a.log.WithField("login_origin", origin).Debug("Resolved login origin")

	// 4. Introspect is informational only.
	a.send(ctx, StepIntrospect, a.session.R().SetBody(map[string]string{"stateToken": stateToken}),
		http.MethodPost, origin+eps.Introspect)

	// 5. Primary authentication, the only checked step.
	if err := a.authenticate(ctx, origin+eps.Authn, creds, stateToken); err != nil {
		metrics.LoginOutcomes.WithLabelValues(a.supplierKey, "failed").Inc()
		a.log.WithError(err).Warn("Login failed")
		return nil, diag, err
	}

	// 6. Step-up redirect returns an auto-submit form with the SAML assertion.
	stepUp := origin + eps.StepUpRedirect + "?stateToken=" + url.QueryEscape(stateToken)
	raw := a.send(ctx, StepStepUp, a.session.R(), http.MethodGet, stepUp)
	flat := sanitize.FlattenHTML(raw)
	saml := a.extractForm(&diag, StepStepUp, samlPattern, flat, raw, "SAMLResponse")
	relayState := a.extractForm(&diag, StepStepUp, relayStatePattern, flat, raw, "RelayState")

	// 7. Hand the assertion back to the supplier and land on the app.
	a.send(ctx, StepAssert, a.session.R().SetFormData(map[string]string{
		"SAMLResponse": saml,
		"RelayState":   relayState,
	}), http.MethodPost, eps.SSOAssert)
	a.send(ctx, StepAssert, a.session.R(), http.MethodGet, eps.Discover)

	// 8. Validate yields the account's opCo and customer id.
	body = a.send(ctx, StepValidate, a.session.R().SetHeader(CSRFHeader, csrfToken).SetBody(map[string]any{}),
		http.MethodPost, eps.Validate)
	m = a.extract(&diag, StepValidate, customerPattern, body, "opCo", "customerId")

	token := &models.AuthToken{
		CSRFToken:  csrfToken,
		OpCo:       m["opCo"],
		CustomerID: m["customerId"],
	}

	// 9. Session cookie by prefix; the last match wins.
	var originURL *url.URL
	if u, err := url.Parse(origin); err == nil {
		originURL = u
	}
	for _, c := range a.session.Cookies(originURL) {
		if strings.HasPrefix(c.Name, a.cfg.SessionCookiePrefix) {
			token.StatefulCookieName = c.Name
			token.StatefulCookieValue = c.Value
		}
	}
	diag.add(Extraction{Step: StepCookie, Field: "statefulCookie", Value: token.StatefulCookieName, Matched: token.StatefulCookieName != ""})
	if token.StatefulCookieName == "" {
		a.miss(StepCookie, "statefulCookie")
	}

	// 10. Caller override of opCo and customer id.
	if override != "" {
		if om := patterns[overridePattern].FindStringSubmatch(override); om != nil {
			token.OpCo, token.CustomerID = om[1], om[2]
			diag.add(Extraction{Step: StepOverride, Field: "override", Value: override, Matched: true})
		} else {
			a.log.WithField("override", override).Warn("Customer override does not look like <opco>-<customer>, ignored")
			diag.add(Extraction{Step: StepOverride, Field: "override", Value: override})
		}
	}

	metrics.LoginOutcomes.WithLabelValues(a.supplierKey, "success").Inc()
	entry := a.log.WithFields(logrus.Fields{"opco": token.OpCo, "customer_id": token.CustomerID})
	if missing := diag.Missing(); len(missing) > 0 {
		entry.Warnf("Login finished with incomplete token (%s)", diag)
	} else {
		entry.Info("Login finished")
	}
	return token, diag, nil
}

// SelectCustomer makes the token's customer the active account of the session
func (a *Acquirer) SelectCustomer(ctx context.Context, token *models.AuthToken) error {
	resp, err := Authorize(a.session.R(), token).
		SetContext(ctx).
		SetBody(map[string]string{"opCo": token.OpCo, "customerId": token.CustomerID}).
		Post(a.cfg.Endpoints.SelectCustomer)
	if err != nil {
		return fmt.Errorf("select customer: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: select customer: status %d", utils.ErrOtherHTTPError, resp.StatusCode())
	}
	a.log.WithFields(logrus.Fields{"opco": token.OpCo, "customer_id": token.CustomerID}).Debug("Customer selected")
	return nil
}

// Authorize adds the token's CSRF header and stateful cookie to req, so a
// caller-supplied token works on a session that never logged in.
func Authorize(req *resty.Request, token *models.AuthToken) *resty.Request {
	if token == nil {
		return req
	}
	if token.CSRFToken != "" {
		req.SetHeader(CSRFHeader, token.CSRFToken)
	}
	if token.StatefulCookieName != "" {
		req.SetCookie(&http.Cookie{Name: token.StatefulCookieName, Value: token.StatefulCookieValue})
	}
	return req
}

func (a *Acquirer) authenticate(ctx context.Context, target string, creds models.Credentials, stateToken string) error {
	resp, err := a.session.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"username":   creds.Username,
			"password":   creds.Password,
			"stateToken": stateToken,
			"options": map[string]bool{
				"warnBeforePasswordExpired": true,
				"multiOptionalFactorEnroll": false,
			},
		}).
		Post(target)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrLoginFailed, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: authn status %d", utils.ErrLoginFailed, resp.StatusCode())
	}
	if !patterns[authnPattern].MatchString(resp.String()) {
		return fmt.Errorf("%w: authn did not report success", utils.ErrLoginFailed)
	}
	return nil
}

// send performs one unchecked chain request and returns its body, or "" when
// the request failed.
func (a *Acquirer) send(ctx context.Context, step string, req *resty.Request, method, target string) string {
	resp, err := req.SetContext(ctx).Execute(method, target)
	stepLog := a.log.WithFields(logrus.Fields{"step": step, "method": method})
	if err != nil {
		stepLog.WithError(err).Warn("Login step request failed, continuing")
		return ""
	}
	if !resp.IsSuccess() {
		stepLog.WithField("status_code", resp.StatusCode()).Warn("Login step returned non-2xx, continuing")
	}
	return resp.String()
}

// extract applies expr to body and maps capture groups to fields, in order
func (a *Acquirer) extract(diag *Diagnostics, step, expr, body string, fields ...string) map[string]string {
	out := make(map[string]string, len(fields))
	re := patterns[expr]
	for i, field := range fields {
		value, ok := utils.Submatch(re, body, i+1)
		out[field] = value
		diag.add(Extraction{Step: step, Field: field, Value: value, Matched: ok})
		if !ok {
			a.miss(step, field)
		}
	}
	return out
}

// extractForm looks a hidden form value up by pattern in the flattened body,
// then by input name in the raw HTML.
func (a *Acquirer) extractForm(diag *Diagnostics, step, expr, flat, raw, name string) string {
	if value, ok := utils.Submatch(patterns[expr], flat, 1); ok {
		diag.add(Extraction{Step: step, Field: name, Value: value, Matched: true})
		return value
	}
	if value, ok := formValue(raw, name); ok {
		a.log.WithField("field", name).Debug("Form value found by input lookup")
		diag.add(Extraction{Step: step, Field: name, Value: value, Matched: true, Fallback: true})
		return value
	}
	diag.add(Extraction{Step: step, Field: name})
	a.miss(step, name)
	return ""
}

func (a *Acquirer) miss(step, field string) {
	metrics.ExtractionMisses.WithLabelValues(step, field).Inc()
	a.log.WithFields(logrus.Fields{"step": step, "field": field}).Warn("Login extraction found no match, using empty value")
}

// loginOrigin is the scheme and host of redirectTo. A missing or relative
// redirect falls back to login_base_url, then base_url.
func (a *Acquirer) loginOrigin(redirectTo string) string {
	if u, err := url.Parse(redirectTo); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	for _, candidate := range []string{a.cfg.LoginBaseURL, a.cfg.BaseURL} {
		if u, err := url.Parse(candidate); err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

func formValue(html, name string) (string, bool) {
	if html == "" {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	return doc.Find(fmt.Sprintf(`input[name=%q]`, name)).First().Attr("value")
}
