package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/raysh454/iro/internal/model"
)

// ─── FakeBackend ───────────────────────────────────────────────────────

// FakeClaims is the payload of the tokens FakeBackend issues.
type FakeClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// RecordedRequest is one request FakeBackend received.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	Body          []byte
}

type fakeUser struct {
	user     model.User
	password string
}

type fakeImage struct {
	id          int64
	name        string
	contentType string
	data        []byte
}

type fakeBatch struct {
	id    string
	files map[string][]byte
}

type failure struct {
	status  int
	message string
}

// FakeBackend is an in-memory implementation of the image transformation
// backend served over httptest. All routes live under /api.
type FakeBackend struct {
	Server *httptest.Server

	Secret   []byte
	TokenTTL time.Duration
	// RequireAuth rejects every non-auth route without a valid bearer token.
	RequireAuth bool
	// EchoClientIDs makes the upload response carry the submitted clientIds.
	EchoClientIDs bool
	// TransformDelay holds transform responses back, to observe progress.
	TransformDelay time.Duration

	mu          sync.Mutex
	users       map[string]*fakeUser
	images      map[int64]*fakeImage
	outputs     map[string]*fakeImage
	batches     map[string]*fakeBatch
	history     []model.TransformationHistoryRecord
	nextUser    int64
	nextImage   int64
	nextRecord  int64
	failures    map[string]failure
	failDeletes map[int64]bool
	requests    []RecordedRequest
}

// NewFakeBackend starts a FakeBackend. Call Close when done.
func NewFakeBackend() *FakeBackend {
	fb := &FakeBackend{
		Secret:        []byte("fake-backend-secret"),
		TokenTTL:      time.Hour,
		RequireAuth:   true,
		EchoClientIDs: true,
		users:         map[string]*fakeUser{},
		images:        map[int64]*fakeImage{},
		outputs:       map[string]*fakeImage{},
		batches:       map[string]*fakeBatch{},
		nextUser:      1,
		nextImage:     100,
		nextRecord:    1000,
		failures:      map[string]failure{},
		failDeletes:   map[int64]bool{},
	}
	fb.Server = httptest.NewServer(fb.routes())
	return fb
}

// URL is the API root to hand to api.NewClient.
func (fb *FakeBackend) URL() string { return fb.Server.URL + "/api" }

func (fb *FakeBackend) Close() { fb.Server.Close() }

func (fb *FakeBackend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(fb.record)
	r.Use(fb.injectFailures)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", fb.handleLogin)
		r.Post("/auth/register", fb.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(fb.authenticate)
			r.Post("/images/upload", fb.handleUpload)
			r.Post("/images/transform", fb.handleTransform(true))
			r.Post("/lote-individual/procesar", fb.handleTransform(false))
			r.Get("/images/download/batch/{batchID}", fb.handleDownloadBatch)
			r.Get("/images/download/{id}", fb.handleDownloadImage)
			r.Get("/history/transformations", fb.handleListHistory)
			r.Get("/history/transformations/{id}", fb.handleHistoryDetail)
			r.Delete("/history/transformations/{id}", fb.handleDeleteHistory)
		})
	})
	return r
}

// ─── Configuration and inspection ──────────────────────────────────────

// AddUser registers an account directly.
func (fb *FakeBackend) AddUser(name, email, password string) model.User {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.addUserLocked(name, email, password)
}

func (fb *FakeBackend) addUserLocked(name, email, password string) model.User {
	u := model.User{ID: fb.nextUser, Name: name, Email: email, RegisterDate: model.NewTimestamp(time.Now().UTC())}
	fb.nextUser++
	fb.users[strings.ToLower(email)] = &fakeUser{user: u, password: password}
	return u
}

// IssueToken signs a token for email that expires after ttl. A negative ttl
// gives an already expired token.
func (fb *FakeBackend) IssueToken(email string, ttl time.Duration) string {
	fb.mu.Lock()
	u := fb.users[strings.ToLower(email)]
	fb.mu.Unlock()

	claims := FakeClaims{Email: email}
	if u != nil {
		claims.Name = u.user.Name
		claims.Subject = strconv.FormatInt(u.user.ID, 10)
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(fb.Secret)
	if err != nil {
		panic(fmt.Sprintf("sign fake token: %v", err))
	}
	return token
}

// Fail makes every method request to path (below /api) answer status with
// message until ClearFailures.
func (fb *FakeBackend) Fail(method, path string, status int, message string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failures[method+" "+path] = failure{status: status, message: message}
}

// FailDelete makes deleting history record id fail with 500.
func (fb *FakeBackend) FailDelete(id int64) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failDeletes[id] = true
}

func (fb *FakeBackend) ClearFailures() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failures = map[string]failure{}
	fb.failDeletes = map[int64]bool{}
}

// SeedHistory replaces the stored history.
func (fb *FakeBackend) SeedHistory(records []model.TransformationHistoryRecord) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.history = append([]model.TransformationHistoryRecord(nil), records...)
}

// History returns the stored history.
func (fb *FakeBackend) History() []model.TransformationHistoryRecord {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]model.TransformationHistoryRecord(nil), fb.history...)
}

// Requests returns every request received so far.
func (fb *FakeBackend) Requests() []RecordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]RecordedRequest(nil), fb.requests...)
}

// RequestsTo returns the requests whose path (below /api) equals p.
func (fb *FakeBackend) RequestsTo(method, p string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range fb.Requests() {
		if r.Method == method && r.Path == p {
			out = append(out, r)
		}
	}
	return out
}

// ─── Middleware ────────────────────────────────────────────────────────

func (fb *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		fb.mu.Lock()
		fb.requests = append(fb.requests, RecordedRequest{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.Path, "/api"),
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			Body:          body,
		})
		fb.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (fb *FakeBackend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		f, ok := fb.failures[r.Method+" "+strings.TrimPrefix(r.URL.Path, "/api")]
		fb.mu.Unlock()
		if ok {
			fakeJSON(w, f.status, map[string]any{"success": false, "message": f.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fb *FakeBackend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !fb.RequireAuth {
			next.ServeHTTP(w, r)
			return
		}
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			fakeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "token required"})
			return
		}
		claims := &FakeClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return fb.Secret, nil
		})
		if err != nil || !token.Valid {
			fakeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Auth ──────────────────────────────────────────────────────────────

func (fb *FakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
		return
	}
	fb.mu.Lock()
	u, ok := fb.users[strings.ToLower(req.Email)]
	fb.mu.Unlock()
	if !ok || u.password != req.Password {
		fakeJSON(w, http.StatusOK, model.AuthResponse{Success: false, Message: "invalid credentials"})
		return
	}
	user := u.user
	fakeJSON(w, http.StatusOK, model.AuthResponse{
		Success: true,
		User:    &user,
		Token:   fb.IssueToken(req.Email, fb.TokenTTL),
		Message: "login successful",
	})
}

func (fb *FakeBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		fakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "name, email and password are required"})
		return
	}
	fb.mu.Lock()
	if _, exists := fb.users[strings.ToLower(req.Email)]; exists {
		fb.mu.Unlock()
		fakeJSON(w, http.StatusOK, model.AuthResponse{Success: false, Message: "email already registered"})
		return
	}
	user := fb.addUserLocked(req.Name, req.Email, req.Password)
	fb.mu.Unlock()

	fakeJSON(w, http.StatusCreated, model.AuthResponse{
		Success: true,
		User:    &user,
		Token:   fb.IssueToken(req.Email, fb.TokenTTL),
		Message: "registered",
	})
}

// ─── Images ────────────────────────────────────────────────────────────

func (fb *FakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		fakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "expected multipart form"})
		return
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		fakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "no images"})
		return
	}
	clientIDs := r.MultipartForm.Value["clientIds"]

	type uploaded struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		ClientID string `json:"clientId,omitempty"`
		Size     int64  `json:"size"`
	}
	out := make([]uploaded, 0, len(files))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			fakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
			return
		}
		data, _ := io.ReadAll(f)
		f.Close()

		img := &fakeImage{id: fb.nextImage, name: fh.Filename, contentType: fh.Header.Get("Content-Type"), data: data}
		fb.nextImage++
		fb.images[img.id] = img

		u := uploaded{ID: img.id, Name: img.name, Size: int64(len(data))}
		if fb.EchoClientIDs && i < len(clientIDs) {
			u.ClientID = clientIDs[i]
		}
		out = append(out, u)
	}
	fakeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "uploaded", "images": out})
}

func (fb *FakeBackend) handleTransform(applyToAll bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.BatchTransformationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			fakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
			return
		}
		if req.ApplyToAll != applyToAll {
			fakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "wrong endpoint for applyToAll"})
			return
		}

		type job struct {
			imageID string
			list    []model.Transformation
			format  model.OutputFormat
		}
		var jobs []job
		if applyToAll {
			if len(req.Transformations) == 0 {
				fakeJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "message": "no transformations"})
				return
			}
			for _, id := range req.Images {
				jobs = append(jobs, job{imageID: id, list: req.Transformations, format: req.OutputFormat})
			}
		} else {
			for _, cfg := range req.ImageConfigs {
				jobs = append(jobs, job{imageID: cfg.ImageID, list: cfg.Transformations, format: cfg.OutputFormat})
			}
		}
		if len(jobs) == 0 {
			fakeJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "message": "no images"})
			return
		}

		if fb.TransformDelay > 0 {
			select {
			case <-time.After(fb.TransformDelay):
			case <-r.Context().Done():
				return
			}
		}

		fb.mu.Lock()
		defer fb.mu.Unlock()

		batch := &fakeBatch{id: uuid.NewString(), files: map[string][]byte{}}
		result := model.BatchResult{BatchID: model.FlexString(batch.id)}
		now := time.Now().UTC().Format("2006-01-02 15:04:05")

		for _, j := range jobs {
			n, err := strconv.ParseInt(j.imageID, 10, 64)
			img, ok := fb.images[n]
			if err != nil || !ok {
				fakeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "unknown image " + j.imageID})
				return
			}
			for order, t := range j.list {
				params, _ := json.Marshal(t.Parameters)
				if t.Parameters == nil {
					params = nil
				}
				fb.history = append(fb.history, model.TransformationHistoryRecord{
					TransformationID: fb.nextRecord,
					ImageID:          img.id,
					Kind:             t.ID,
					ParametersRaw:    model.RawParams(params),
					Order:            order,
					CreatedAt:        model.Timestamp{Raw: now},
				})
				fb.nextRecord++
			}

			ext := strings.ToLower(string(j.format))
			if !j.format.IsConcrete() {
				ext = strings.TrimPrefix(path.Ext(img.name), ".")
			}
			outID := "t" + strconv.FormatInt(img.id, 10) + "-" + batch.id[:8]
			outName := strings.TrimSuffix(img.name, path.Ext(img.name)) + "_transformed." + ext
			fb.outputs[outID] = &fakeImage{name: outName, contentType: img.contentType, data: img.data}
			batch.files[outName] = img.data

			result.Images = append(result.Images, model.TransformedImage{
				ID:              model.FlexString(outID),
				OriginalName:    img.name,
				TransformedName: outName,
				DownloadURL:     "/api/images/download/" + outID,
				Size:            int64(len(img.data)),
				Format:          strings.ToUpper(ext),
			})
			result.TotalSize += int64(len(img.data))
		}
		result.ImageCount = len(result.Images)
		result.DownloadZipURL = "/api/images/download/batch/" + batch.id
		fb.batches[batch.id] = batch

		fakeJSON(w, http.StatusOK, result)
	}
}

func (fb *FakeBackend) handleDownloadBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchID")
	fb.mu.Lock()
	batch, ok := fb.batches[id]
	var names []string
	files := map[string][]byte{}
	if ok {
		for name, data := range batch.files {
			names = append(names, name)
			files[name] = data
		}
	}
	fb.mu.Unlock()
	if !ok {
		fakeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "batch not found"})
		return
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = fw.Write(files[name])
	}
	if err := zw.Close(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transformaciones_%s.zip"`, id))
	_, _ = w.Write(buf.Bytes())
}

func (fb *FakeBackend) handleDownloadImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fb.mu.Lock()
	img, ok := fb.outputs[id]
	fb.mu.Unlock()
	if !ok {
		fakeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "image not found"})
		return
	}
	if img.contentType != "" {
		w.Header().Set("Content-Type", img.contentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, img.name))
	_, _ = w.Write(img.data)
}

// ─── History ───────────────────────────────────────────────────────────

func (fb *FakeBackend) handleListHistory(w http.ResponseWriter, _ *http.Request) {
	fakeJSON(w, http.StatusOK, model.HistoryListResponse{Success: true, Data: fb.History()})
}

func (fb *FakeBackend) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		fakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid id"})
		return
	}
	for _, rec := range fb.History() {
		if rec.TransformationID == id {
			rec := rec
			fakeJSON(w, http.StatusOK, model.HistoryDetailResponse{Success: true, Data: &rec})
			return
		}
	}
	fakeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "record not found"})
}

func (fb *FakeBackend) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		fakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid id"})
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.failDeletes[id] {
		fakeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "delete failed"})
		return
	}
	for i, rec := range fb.history {
		if rec.TransformationID == id {
			fb.history = append(fb.history[:i], fb.history[i+1:]...)
			fakeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "deleted"})
			return
		}
	}
	fakeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "record not found"})
}

// ─── Helpers ───────────────────────────────────────────────────────────

func fakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

