package api_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raysh454/iro/internal/api"
	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/testutil"
	"github.com/raysh454/iro/internal/tokenstore"
	"github.com/raysh454/iro/internal/webclient"
)

type fixture struct {
	backend *testutil.FakeBackend
	client  *api.Client
	tokens  *tokenstore.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fb := testutil.NewFakeBackend()
	t.Cleanup(fb.Close)

	logger := &testutil.DummyLogger{}
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, logger, fb.Server.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	tokens := tokenstore.NewMemoryStore()
	return &fixture{
		backend: fb,
		client:  api.NewClient(fb.URL()+"/", wc, tokens, logger),
		tokens:  tokens,
	}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	f.backend.AddUser("Ada", "ada@example.com", "secret")
	if _, err := f.client.Login(context.Background(), model.LoginRequest{Email: "ada@example.com", Password: "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func writeImage(t *testing.T, dir, name string, data []byte) model.ImageRef {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return model.ImageRef{
		ID:        "local-" + name,
		ClientID:  "local-" + name,
		Name:      name,
		SizeBytes: int64(len(data)),
		MIMEType:  "image/png",
		Path:      p,
		Selected:  true,
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

// ─── Auth ──────────────────────────────────────────────────────────────

func TestLogin_StoresTokenAndSendsBearer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.backend.AddUser("Ada", "ada@example.com", "secret")

	resp, err := f.client.Login(ctx, model.LoginRequest{Email: "ada@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.User == nil || resp.User.Name != "Ada" {
		t.Fatalf("unexpected user %+v", resp.User)
	}
	stored, err := f.tokens.Load(ctx)
	if err != nil || stored != resp.Token {
		t.Fatalf("token not stored: %q, %v", stored, err)
	}

	if _, err := f.client.ListHistory(ctx); err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	reqs := f.backend.RequestsTo(http.MethodGet, "/history/transformations")
	if len(reqs) != 1 || reqs[0].Authorization != "Bearer "+resp.Token {
		t.Errorf("expected bearer header on history request, got %+v", reqs)
	}

	if err := f.client.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, err = f.client.ListHistory(ctx)
	if api.KindOf(err) != api.KindAuth {
		t.Errorf("expected auth error after logout, got %v", err)
	}
}

func TestLogin_Rejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.backend.AddUser("Ada", "ada@example.com", "secret")

	_, err := f.client.Login(context.Background(), model.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	if api.KindOf(err) != api.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if got := api.UserMessage(err); got != "invalid credentials" {
		t.Errorf("expected backend message, got %q", got)
	}
	if _, err := f.tokens.Load(context.Background()); !errors.Is(err, tokenstore.ErrNoToken) {
		t.Error("a failed login must not store a token")
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	req := model.RegisterRequest{Name: "Grace", Email: "grace@example.com", Password: "pw"}

	resp, err := f.client.Register(ctx, req)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.User.Email != "grace@example.com" || resp.Token == "" {
		t.Errorf("unexpected response %+v", resp)
	}

	_, err = f.client.Register(ctx, req)
	if api.KindOf(err) != api.KindAuth || api.UserMessage(err) != "email already registered" {
		t.Errorf("expected duplicate rejection, got %v", err)
	}
}

// ─── Images ────────────────────────────────────────────────────────────

func TestUploadImages_Multipart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	dir := t.TempDir()
	images := []model.ImageRef{
		writeImage(t, dir, "a.png", pngHeader),
		writeImage(t, dir, `we"ird.png`, pngHeader),
	}

	resp, err := f.client.UploadImages(context.Background(), images)
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	if !resp.Success || len(resp.Images) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Images[0].ClientID != "local-a.png" || resp.Images[0].ID == "" {
		t.Errorf("expected echoed client id and backend id, got %+v", resp.Images[0])
	}
	if resp.Images[1].Name != `we"ird.png` {
		t.Errorf("quoted filename mangled: %q", resp.Images[1].Name)
	}

	reqs := f.backend.RequestsTo(http.MethodPost, "/images/upload")
	if len(reqs) != 1 || !strings.HasPrefix(reqs[0].ContentType, "multipart/form-data; boundary=") {
		t.Errorf("expected multipart upload, got %+v", reqs)
	}
}

func TestUploadImages_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)

	if _, err := f.client.UploadImages(context.Background(), nil); !errors.Is(err, api.ErrNothingToUpload) {
		t.Errorf("expected ErrNothingToUpload, got %v", err)
	}
	_, err := f.client.UploadImages(context.Background(), []model.ImageRef{{Name: "gone.png", Path: filepath.Join(t.TempDir(), "gone.png")}})
	if err == nil {
		t.Error("expected error for a missing file")
	}
	if len(f.backend.RequestsTo(http.MethodPost, "/images/upload")) != 0 {
		t.Error("nothing should be sent when a file cannot be read")
	}
}

func TestApplyTransformations_PicksEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	up, err := f.client.UploadImages(ctx, []model.ImageRef{writeImage(t, t.TempDir(), "a.png", pngHeader)})
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	id := string(up.Images[0].ID)
	brightness := model.Transformation{ID: "brightness", Parameters: map[string]any{"value": 50}}

	batch, err := f.client.ApplyTransformations(ctx, model.BatchTransformationRequest{
		ApplyToAll:      true,
		Transformations: []model.Transformation{brightness},
		OutputFormat:    model.FormatPNG,
		Images:          []string{id},
	})
	if err != nil {
		t.Fatalf("batch apply: %v", err)
	}
	if batch.BatchID == "" || batch.ImageCount != 1 {
		t.Errorf("unexpected batch result %+v", batch)
	}

	_, err = f.client.ApplyTransformations(ctx, model.BatchTransformationRequest{
		ApplyToAll:   false,
		ImageConfigs: []model.ImageConfig{{ImageID: id, Transformations: []model.Transformation{brightness}}},
		Images:       []string{id},
	})
	if err != nil {
		t.Fatalf("individual apply: %v", err)
	}

	if n := len(f.backend.RequestsTo(http.MethodPost, api.PathTransformBatch)); n != 1 {
		t.Errorf("expected 1 batch request, got %d", n)
	}
	if n := len(f.backend.RequestsTo(http.MethodPost, api.PathTransformIndividual)); n != 1 {
		t.Errorf("expected 1 individual request, got %d", n)
	}
}

func TestDownloadBatchAndImage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	up, _ := f.client.UploadImages(ctx, []model.ImageRef{writeImage(t, t.TempDir(), "a.png", pngHeader)})
	batch, err := f.client.ApplyBatch(ctx, model.BatchTransformationRequest{
		ApplyToAll:      true,
		Transformations: []model.Transformation{{ID: "grayscale", Parameters: map[string]any{}}},
		Images:          []string{string(up.Images[0].ID)},
	})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	zipped, err := f.client.DownloadBatch(ctx, string(batch.BatchID))
	if err != nil {
		t.Fatalf("DownloadBatch: %v", err)
	}
	if !strings.HasSuffix(zipped.Filename, ".zip") || !strings.HasPrefix(string(zipped.Data), "PK") {
		t.Errorf("expected a zip download, got %q (%d bytes)", zipped.Filename, len(zipped.Data))
	}

	single, err := f.client.DownloadImage(ctx, string(batch.Images[0].ID))
	if err != nil {
		t.Fatalf("DownloadImage: %v", err)
	}
	if single.Filename != "a_transformed.png" || string(single.Data) != string(pngHeader) {
		t.Errorf("unexpected image download %q", single.Filename)
	}

	_, err = f.client.DownloadBatch(ctx, "missing")
	if api.KindOf(err) != api.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

// ─── History ───────────────────────────────────────────────────────────

func seed(f *fixture) {
	f.backend.SeedHistory([]model.TransformationHistoryRecord{
		{TransformationID: 1, ImageID: 10, Kind: "blur", ParametersRaw: `{"radius":5}`, Order: 0},
		{TransformationID: 2, ImageID: 10, Kind: "flip", Order: 1},
		{TransformationID: 3, ImageID: 10, Kind: "sharpen", Order: 2},
		{TransformationID: 4, ImageID: 11, Kind: "grayscale", Order: 0},
	})
}

func TestHistory_ListDetailDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	seed(f)
	ctx := context.Background()

	records, err := f.client.ListHistory(ctx)
	if err != nil || len(records) != 4 {
		t.Fatalf("ListHistory = %d records, %v", len(records), err)
	}

	rec, err := f.client.HistoryDetail(ctx, 1)
	if err != nil || rec.ParametersRaw != `{"radius":5}` {
		t.Fatalf("HistoryDetail = %+v, %v", rec, err)
	}

	if err := f.client.DeleteHistory(ctx, 1); err != nil {
		t.Fatalf("DeleteHistory: %v", err)
	}
	if _, err := f.client.HistoryDetail(ctx, 1); api.KindOf(err) != api.KindNotFound {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestDeleteImageHistory_AllSucceed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	seed(f)

	report, err := f.client.DeleteImageHistory(context.Background(), []int64{3, 1, 2}, 2)
	if err != nil {
		t.Fatalf("DeleteImageHistory: %v", err)
	}
	if len(report.Deleted) != 3 || report.Deleted[0] != 1 || len(report.Failed) != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if got := len(f.backend.History()); got != 1 {
		t.Errorf("expected 1 record left on the backend, got %d", got)
	}
}

func TestDeleteImageHistory_PartialFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	seed(f)
	f.backend.FailDelete(2)

	report, err := f.client.DeleteImageHistory(context.Background(), []int64{1, 2, 3}, 0)
	if err == nil {
		t.Fatal("expected an error when one delete fails")
	}
	if api.KindOf(err) != api.KindServer {
		t.Errorf("expected server kind to survive wrapping, got %s", api.KindOf(err))
	}
	if len(report.Deleted) != 2 || report.Failed[2] == nil {
		t.Errorf("unexpected report %+v", report)
	}
	// already deleted records stay deleted
	if got := len(f.backend.History()); got != 2 {
		t.Errorf("expected records 2 and 4 to remain, got %d", got)
	}
}

// ─── Error taxonomy ────────────────────────────────────────────────────

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   int
		wantKind api.Kind
	}{
		{http.StatusBadRequest, api.KindValidation},
		{http.StatusUnprocessableEntity, api.KindValidation},
		{http.StatusUnauthorized, api.KindAuth},
		{http.StatusForbidden, api.KindAuth},
		{http.StatusNotFound, api.KindNotFound},
		{http.StatusInternalServerError, api.KindServer},
		{http.StatusBadGateway, api.KindServer},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.login(t)
			f.backend.Fail(http.MethodGet, "/history/transformations", tt.status, "injected")

			_, err := f.client.ListHistory(context.Background())
			var apiErr *api.Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *api.Error, got %v", err)
			}
			if apiErr.Kind != tt.wantKind || apiErr.Status != tt.status {
				t.Errorf("got kind %s status %d, want %s %d", apiErr.Kind, apiErr.Status, tt.wantKind, tt.status)
			}
			if api.UserMessage(err) != "injected" {
				t.Errorf("expected backend message, got %q", api.UserMessage(err))
			}
		})
	}
}

func TestErrorKinds_SuccessFalseOn200(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	f.backend.Fail(http.MethodGet, "/history/transformations", http.StatusOK, "history unavailable")

	_, err := f.client.ListHistory(context.Background())
	if api.KindOf(err) != api.KindServer || api.UserMessage(err) != "history unavailable" {
		t.Errorf("expected server error with message, got %v", err)
	}
}

func TestErrorKinds_Network(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.backend.Close()

	_, err := f.client.ListHistory(context.Background())
	if api.KindOf(err) != api.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if !strings.Contains(api.UserMessage(err), "cannot reach the server") {
		t.Errorf("unexpected message %q", api.UserMessage(err))
	}
}

func TestKindOf_NonAPIErrors(t *testing.T) {
	t.Parallel()
	if api.KindOf(nil) != "" {
		t.Error("nil error has no kind")
	}
	if api.KindOf(context.DeadlineExceeded) != api.KindNetwork {
		t.Error("deadline should count as network")
	}
	if api.KindOf(errors.New("boom")) != api.KindUnknown {
		t.Error("plain errors are unknown")
	}
	if api.UserMessage(errors.New("boom")) != "boom" {
		t.Error("plain errors keep their text")
	}
	err := &api.Error{Kind: api.KindNotFound, Op: "history detail", Status: 404}
	if api.UserMessage(err) != "the requested item was not found" {
		t.Errorf("unexpected default message %q", api.UserMessage(err))
	}
	if !strings.Contains(err.Error(), "history detail") || !strings.Contains(err.Error(), "404") {
		t.Errorf("Error() should carry op and status: %s", err.Error())
	}
}
