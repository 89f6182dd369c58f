package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/hubexport/internal/domain"
	"github.com/timmy/hubexport/internal/logger"
)

// HubConfig configures the repository hosting platform client.
type HubConfig struct {
	Endpoint string
	RepoType string // dataset, model, space
	Private  bool
	Timeout  time.Duration
}

// HubRepository publishes to a hosting platform over its HTTP API. Uploads
// are streamed from the source URL straight into the upload request.
type HubRepository struct {
	client   *resty.Client
	endpoint string
	repoType string
	private  bool
	source   *sourceFetcher
}

// NewHubRepository creates a hub client.
// Parameters:
//   - cfg: hub endpoint, repository type, visibility and request timeout.
// Returns:
//   - *HubRepository: repository client for the hub HTTP API.
func NewHubRepository(cfg HubConfig) *HubRepository {
	client := resty.New()
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	repoType := cfg.RepoType
	if repoType == "" {
		repoType = "dataset"
	}

	return &HubRepository{
		client:   client,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		repoType: repoType,
		private:  cfg.Private,
		source:   newSourceFetcher(0),
	}
}

type createRepoRequest struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Type         string `json:"type"`
	Private      bool   `json:"private"`
	License      string `json:"license,omitempty"`
}

// CreateRepository creates id ("namespace/name"). An existing repository is
// reported as domain.ErrAlreadyExists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - token: OAuth access token of the owner.
//   - id: repository id in namespace/name form.
//   - license: license tag stored with the repository.
// Returns:
//   - error: non-nil if creation fails; wraps domain.ErrAlreadyExists on conflict.
func (h *HubRepository) CreateRepository(ctx context.Context, token, id, license string) error {
	namespace, name, err := splitRepositoryID(id)
	if err != nil {
		return err
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(createRepoRequest{
			Name:         name,
			Organization: namespace,
			Type:         h.repoType,
			Private:      h.private,
			License:      license,
		}).
		Post(h.endpoint + "/api/repos/create")
	if err != nil {
		return fmt.Errorf("failed to call create endpoint: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusConflict:
		return fmt.Errorf("%s: %w", id, domain.ErrAlreadyExists)
	case resp.IsError():
		return fmt.Errorf("create repository %s: HTTP %d: %s", id, resp.StatusCode(), string(resp.Body()))
	}

	logger.CtxInfo(ctx, "Created %s repository %s", h.repoType, id)
	return nil
}

// UploadByReference streams every file from its source URL into id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - token: OAuth access token of the owner.
//   - id: repository id in namespace/name form.
//   - files: target paths and the URLs their bytes are streamed from.
// Returns:
//   - error: non-nil on the first file that cannot be fetched or stored.
func (h *HubRepository) UploadByReference(ctx context.Context, token, id string, files []FileRef) error {
	for _, f := range files {
		if err := h.upload(ctx, token, id, f); err != nil {
			return err
		}
	}
	return nil
}

func (h *HubRepository) upload(ctx context.Context, token, id string, f FileRef) error {
	size, err := h.source.length(ctx, f.SourceURL)
	if err != nil {
		return fmt.Errorf("upload %s: %w", f.Path, err)
	}

	art, err := h.source.open(ctx, f.SourceURL)
	if err != nil {
		return fmt.Errorf("upload %s: %w", f.Path, err)
	}
	defer art.body.Close()

	req := h.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(art.body)
	if art.contentType != "" {
		req.SetHeader("Content-Type", art.contentType)
	}

	start := time.Now()
	resp, err := req.Put(h.uploadURL(id, f.Path))
	if err != nil {
		return fmt.Errorf("upload %s: %w", f.Path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("upload %s: HTTP %d: %s", f.Path, resp.StatusCode(), string(resp.Body()))
	}

	logger.With(logger.Fields{"path": f.Path}).
		WithDuration(time.Since(start).Milliseconds()).
		WithSize(int(size)).
		Info(ctx, "Uploaded %s to %s", f.Path, id)
	return nil
}

func (h *HubRepository) uploadURL(id, path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/api/%ss/%s/upload/main/%s", h.endpoint, h.repoType, id, strings.Join(segments, "/"))
}

func splitRepositoryID(id string) (string, string, error) {
	namespace, name, ok := strings.Cut(id, "/")
	if !ok || namespace == "" || name == "" || strings.Contains(name, "/") {
		return "", "", &domain.ValidationError{Field: "repository id", Value: id, Reason: "want namespace/name"}
	}
	return namespace, name, nil
}
