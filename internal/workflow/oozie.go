package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nfrund/scriptdesk/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Oozie error codes for unknown jobs.
const (
	errCodeJobNotFound  = "E0604"
	errCodeJobNotExists = "E0605"
)

// Oozie is a client for the Oozie REST v1 API.
type Oozie struct {
	baseURL    string
	httpClient *http.Client
}

var _ Orchestrator = (*Oozie)(nil)

// OozieOption configures an Oozie client.
type OozieOption func(*Oozie)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) OozieOption {
	return func(o *Oozie) { o.httpClient = c }
}

// NewOozie creates a client for the server at baseURL, e.g. http://oozie:11000/oozie.
func NewOozie(baseURL string, opts ...OozieOption) *Oozie {
	o := &Oozie{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit posts the submission configuration and starts the job.
func (o *Oozie) Submit(ctx context.Context, sub *domain.Submission) (string, error) {
	body, err := encodeConf(submissionConf(sub))
	if err != nil {
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	q := url.Values{"action": {"start"}}
	if err := o.do(ctx, "workflow.Oozie.Submit", http.MethodPost, "/v1/jobs", q, body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", domain.NewError(domain.ErrRemote, "workflow.Oozie.Submit", "orchestrator returned no job id", nil)
	}

	slog.InfoContext(ctx, "Submitted Oozie job", "event", "oozie_submitted", "job_id", out.ID, "app_path", sub.AppPath)
	return out.ID, nil
}

// Kill stops a running job.
func (o *Oozie) Kill(ctx context.Context, jobID string) error {
	q := url.Values{"action": {"kill"}}
	return o.do(ctx, "workflow.Oozie.Kill", http.MethodPut, "/v1/job/"+url.PathEscape(jobID), q, nil, nil)
}

// Job fetches the job info.
func (o *Oozie) Job(ctx context.Context, jobID string) (*domain.Job, error) {
	var raw oozieJob
	q := url.Values{"show": {"info"}}
	if err := o.do(ctx, "workflow.Oozie.Job", http.MethodGet, "/v1/job/"+url.PathEscape(jobID), q, nil, &raw); err != nil {
		return nil, err
	}
	return raw.toDomain()
}

// Log fetches the job log.
func (o *Oozie) Log(ctx context.Context, jobID string) (string, error) {
	var buf bytes.Buffer
	q := url.Values{"show": {"log"}}
	if err := o.do(ctx, "workflow.Oozie.Log", http.MethodGet, "/v1/job/"+url.PathEscape(jobID), q, nil, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Jobs lists workflow jobs matching filter.
func (o *Oozie) Jobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	var terms []string
	if filter.User != "" {
		terms = append(terms, "user="+filter.User)
	}
	if filter.AppName != "" {
		terms = append(terms, "name="+filter.AppName)
	}
	q := url.Values{"jobtype": {"wf"}}
	if len(terms) > 0 {
		q.Set("filter", strings.Join(terms, ";"))
	}
	if filter.Len > 0 {
		q.Set("len", strconv.Itoa(filter.Len))
	}

	var out struct {
		Workflows []oozieJob `json:"workflows"`
	}
	if err := o.do(ctx, "workflow.Oozie.Jobs", http.MethodGet, "/v1/jobs", q, nil, &out); err != nil {
		return nil, err
	}

	jobs := make([]*domain.Job, 0, len(out.Workflows))
	for _, w := range out.Workflows {
		j, err := w.toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// do performs one API call. A *bytes.Buffer out receives the raw body; any
// other non-nil out is decoded as JSON.
func (o *Oozie) do(ctx context.Context, op, method, path string, q url.Values, body []byte, out any) error {
	u := o.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return domain.NewError(domain.ErrRemote, op, "failed to build orchestrator request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/xml;charset=UTF-8")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return domain.NewError(domain.ErrRemote, op, "orchestrator is unreachable", err)
	}
	defer resp.Body.Close()

	slog.DebugContext(ctx, "Oozie request", "event", "oozie_request",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if err := checkResponse(op, resp); err != nil {
		return err
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		if _, err := io.Copy(dst, resp.Body); err != nil {
			return domain.NewError(domain.ErrRemote, op, "failed to read orchestrator response", err)
		}
	default:
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return domain.NewError(domain.ErrRemote, op, "failed to decode orchestrator response", err)
		}
	}
	return nil
}

// checkResponse maps a non-2xx response to NotFound or Remote.
func checkResponse(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	remote := &RemoteError{
		StatusCode: resp.StatusCode,
		Code:       resp.Header.Get("oozie-error-code"),
		Message:    resp.Header.Get("oozie-error-message"),
	}
	if remote.Message == "" {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		remote.Message = strings.TrimSpace(string(b))
	}
	if remote.Message == "" {
		remote.Message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNotFound || remote.Code == errCodeJobNotFound || remote.Code == errCodeJobNotExists {
		return domain.NotFound(op, "job not found", remote)
	}
	return domain.NewError(domain.ErrRemote, op, remote.Message, remote)
}

// oozieTime is the timestamp layout used by the Oozie REST API.
const oozieTime = time.RFC1123

type oozieAction struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	ExternalID   string `json:"externalId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Transition   string `json:"transition"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
}

type oozieJob struct {
	ID          string        `json:"id"`
	AppName     string        `json:"appName"`
	AppPath     string        `json:"appPath"`
	User        string        `json:"user"`
	Group       string        `json:"group"`
	ACL         string        `json:"acl"`
	Status      string        `json:"status"`
	Conf        string        `json:"conf"`
	Actions     []oozieAction `json:"actions"`
	CreatedTime string        `json:"createdTime"`
	StartTime   string        `json:"startTime"`
	EndTime     string        `json:"endTime"`
}

func (j *oozieJob) toDomain() (*domain.Job, error) {
	conf, err := decodeConf(j.Conf)
	if err != nil {
		return nil, domain.NewError(domain.ErrRemote, "workflow.Oozie", "malformed job configuration", err)
	}

	job := &domain.Job{
		ID:          j.ID,
		AppName:     j.AppName,
		AppPath:     j.AppPath,
		User:        j.User,
		Group:       j.Group,
		ACL:         splitACL(j.ACL),
		Status:      domain.JobStatus(j.Status),
		Conf:        conf,
		Actions:     make([]domain.JobAction, 0, len(j.Actions)),
		CreatedTime: parseTime(j.CreatedTime),
		StartTime:   parseTime(j.StartTime),
		EndTime:     parseTime(j.EndTime),
	}
	for _, a := range j.Actions {
		job.Actions = append(job.Actions, domain.JobAction{
			ID:           a.ID,
			Name:         a.Name,
			Type:         a.Type,
			Status:       a.Status,
			ExternalID:   a.ExternalID,
			ErrorCode:    a.ErrorCode,
			ErrorMessage: a.ErrorMessage,
			Transition:   a.Transition,
			StartTime:    parseTime(a.StartTime),
			EndTime:      parseTime(a.EndTime),
		})
	}
	return job, nil
}

// parseTime returns nil for empty or unparsable timestamps.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(oozieTime, s)
	if err != nil {
		return nil
	}
	return &t
}

func splitACL(acl string) []string {
	var out []string
	for _, p := range strings.Split(acl, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// remoteErrorf builds an ErrRemote failure with a formatted message.
func remoteErrorf(op, format string, args ...any) error {
	return domain.NewError(domain.ErrRemote, op, fmt.Sprintf(format, args...), nil)
}
