package dataservice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/internal/hydrate"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// Client talks to the course data service. It implements cascade.Resolver
// and cascade.Searcher.
//
// Identical option requests issued concurrently share one round trip.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	headers http.Header
	group   singleflight.Group

	institutions *hydrate.Decoder[Institution]
	results      *hydrate.Decoder[cascade.CourseResult]
	details      *hydrate.Decoder[CourseDetail]
}

var (
	_ cascade.Resolver = (*Client)(nil)
	_ cascade.Searcher = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// WithRateLimit caps outbound requests at rps with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// NewClient constructs a client for the service rooted at baseURL, e.g.
// "http://localhost:8080/api".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: defaultTimeout},
		headers: http.Header{},
		institutions: hydrate.NewDecoder(
			hydrate.WithPreHook[Institution](hydrate.RenameKeys(map[string]string{"institutionId": "id"})),
			hydrate.WithPreHook[Institution](hydrate.StringifyKeys("id")),
			hydrate.WithPreHook[Institution](hydrate.TrimStrings),
		),
		results: hydrate.NewDecoder(
			hydrate.WithPreHook[cascade.CourseResult](hydrate.RenameKeys(map[string]string{"id": "courseId"})),
			hydrate.WithPreHook[cascade.CourseResult](hydrate.StringifyKeys("courseId")),
			hydrate.WithPostHook[cascade.CourseResult](requireCourseID),
		),
		details: hydrate.NewDecoder(
			hydrate.WithPreHook[CourseDetail](hydrate.StringifyKeys("courseId", "institutionId")),
		),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("dataservice: base URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("dataservice: parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("dataservice: base URL must include a host (got %q)", raw)
	}
	// ResolveReference treats the base as a directory only with a trailing slash.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// BaseURL returns the normalised service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Institutions fetches the institution list.
func (c *Client) Institutions(ctx context.Context) ([]Institution, error) {
	ctxHydrate := hydrate.Context{Endpoint: PathSearchOptions, Type: TypeInstitutions}
	body, err := c.options(ctx, TypeInstitutions, "", "")
	if err != nil {
		return nil, err
	}
	return c.institutions.DecodeJSON(ctxHydrate, body)
}

// Options fetches a scalar option list (courseCodes, courseTitles or terms).
// Empty institution or course code parameters are omitted.
func (c *Client) Options(ctx context.Context, typ, institutionID, courseCode string) ([]string, error) {
	body, err := c.options(ctx, typ, institutionID, courseCode)
	if err != nil {
		return nil, err
	}
	return hydrate.DecodeStrings(hydrate.Context{Endpoint: PathSearchOptions, Type: typ}, body)
}

// CourseTitle fetches the single title of a course code. A missing course
// yields "".
func (c *Client) CourseTitle(ctx context.Context, institutionID, courseCode string) (string, error) {
	body, err := c.options(ctx, TypeCourseTitle, institutionID, courseCode)
	if err != nil {
		return "", err
	}
	return hydrate.DecodeString(hydrate.Context{Endpoint: PathSearchOptions, Type: TypeCourseTitle}, body)
}

// Resolve implements cascade.Resolver by mapping the scope onto the
// matching getSearchOptions type.
func (c *Client) Resolve(ctx context.Context, scope cascade.Scope) ([]cascade.OptionEntry, error) {
	typ, err := OptionType(scope)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeInstitutions:
		institutions, err := c.Institutions(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]cascade.OptionEntry, 0, len(institutions))
		for _, inst := range institutions {
			out = append(out, cascade.LabeledEntry(inst.ID, inst.Name))
		}
		return out, nil
	case TypeCourseTitle:
		title, err := c.CourseTitle(ctx, scope.InstitutionID(), scope.CourseCode())
		if err != nil {
			return nil, err
		}
		if title == "" {
			return []cascade.OptionEntry{}, nil
		}
		return []cascade.OptionEntry{cascade.Entry(title)}, nil
	default:
		values, err := c.Options(ctx, typ, scope.InstitutionID(), scope.CourseCode())
		if err != nil {
			return nil, err
		}
		out := make([]cascade.OptionEntry, 0, len(values))
		for _, value := range values {
			out = append(out, cascade.Entry(value))
		}
		return out, nil
	}
}

// Search implements cascade.Searcher. All six query keys are sent, empty
// filters included.
// requireCourseID rejects result rows that cannot be keyed by course id.
func requireCourseID(_ hydrate.Context, result *cascade.CourseResult) error {
	if strings.TrimSpace(result.CourseID) == "" {
		return fmt.Errorf("dataservice: result %q has no courseId", result.Code)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, query cascade.SearchQuery) ([]cascade.CourseResult, error) {
	form := query.Values()
	req, err := c.newRequest(ctx, http.MethodPost, PathSearchCourse, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, "searchCourse")
	if err != nil {
		return nil, err
	}
	results, err := c.results.DecodeJSON(hydrate.Context{Endpoint: PathSearchCourse}, body)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []cascade.CourseResult{}
	}
	return results, nil
}

// CourseDetail fetches the full record behind a result row.
func (c *Client) CourseDetail(ctx context.Context, courseID string) (CourseDetail, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return CourseDetail{}, fmt.Errorf("dataservice: course id is required")
	}
	req, err := c.newRequest(ctx, http.MethodGet, PathCourseDetail, url.Values{"courseId": {courseID}}, nil)
	if err != nil {
		return CourseDetail{}, err
	}
	body, err := c.do(req, "getCourseDetail")
	if err != nil {
		return CourseDetail{}, err
	}
	body = []byte("[" + strings.TrimSpace(string(body)) + "]")
	details, err := c.details.DecodeJSON(hydrate.Context{Endpoint: PathCourseDetail}, body)
	if err != nil {
		return CourseDetail{}, err
	}
	if len(details) != 1 {
		return CourseDetail{}, fmt.Errorf("dataservice: course %s: unexpected payload", courseID)
	}
	return details[0], nil
}

// options performs a getSearchOptions call, sharing the response between
// identical concurrent calls.
func (c *Client) options(ctx context.Context, typ, institutionID, courseCode string) ([]byte, error) {
	params := url.Values{"type": {typ}}
	if institutionID = strings.TrimSpace(institutionID); institutionID != "" {
		params.Set("institutionId", institutionID)
	}
	if courseCode = strings.TrimSpace(courseCode); courseCode != "" {
		params.Set("courseCode", courseCode)
	}
	// The shared request runs detached from any one caller's cancellation and
	// is bounded by the client timeout. A cancelled caller stops waiting
	// without failing the others.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(params.Encode(), func() (any, error) {
		req, err := c.newRequest(shared, http.MethodGet, PathSearchOptions, params, nil)
		if err != nil {
			return nil, err
		}
		return c.do(req, "getSearchOptions:"+typ)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("dataservice: getSearchOptions:%s: %w", typ, ctx.Err())
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("dataservice: %s: rate limit: %w", op, err)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataservice: %s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dataservice: %s: read body: %w", op, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, newHTTPError(op, resp, b)
	}
	return b, nil
}
