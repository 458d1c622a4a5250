package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/assets"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/filters"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/maps"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/gateway"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/state"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	UPLOAD_FIELD = "mapFile"
	// In-memory part of multipart uploads, the rest spills to disk.
	UPLOAD_MEMORY = 32 << 20

	INDEX_PAGE  = "index.html"
	PLAYER_PAGE = "player.html"
)

// Keys a saved map config must carry.
var REQUIRED_CONFIG_KEYS = []string{
	state.KEY_MAP_CONTENT_PATH,
	state.KEY_CURRENT_FILTER,
	state.KEY_VIEW_STATE,
	state.KEY_FILTER_PARAMS,
}

type Resolver interface {
	Resolve(ctx context.Context, name string) opt.Option[state.State]
}

// API serves everything the GM and player pages need besides the realtime
// channel.
type API struct {
	catalog   *filters.Catalog
	content   *maps.DirContent
	configs   maps.ConfigStore
	resolver  Resolver
	staticDir string
}

func New(
	catalog *filters.Catalog,
	content *maps.DirContent,
	configs maps.ConfigStore,
	resolver Resolver,
	staticDir string,
) *API {
	return &API{
		catalog:   catalog,
		content:   content,
		configs:   configs,
		resolver:  resolver,
		staticDir: staticDir,
	}
}

func (a *API) Logger() zerolog.Logger {
	return log.With().Str("service", "api").Logger()
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Router builds the full HTTP surface. ws and metrics may be nil.
func Router(a *API, ws http.Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	a.RegisterRoutes(r)

	if ws != nil {
		r.Handle("/ws", ws)
	}

	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	return r
}

func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/", a.servePage(INDEX_PAGE))
	r.Get("/player", a.servePlayer)
	r.Get("/maps/*", a.serveMap)
	r.With(NoCache).Get("/filters/{id}/{shader}", a.serveShader)

	if a.staticDir != "" {
		r.Handle("/static/*", http.StripPrefix(
			"/static/",
			http.FileServer(http.Dir(a.staticDir)),
		))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/filters", a.listFilters)
		r.Get("/maps", a.listMaps)
		r.Post("/maps", a.uploadMap)
		r.Get("/config/*", a.getConfig)
		r.Post("/config/*", a.saveConfig)
	})
}

func (a *API) servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.staticDir == "" {
			writeError(w, http.StatusNotFound, "Page not available")
			return
		}

		path := filepath.Join(a.staticDir, name)
		if !assets.FileExists(path) {
			writeError(w, http.StatusNotFound, "Page not available")
			return
		}

		http.ServeFile(w, r, path)
	}
}

func (a *API) servePlayer(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if !gateway.ValidSessionID(session) {
		http.Error(w, "Error: Session ID is missing, invalid, or too long.", http.StatusBadRequest)
		return
	}

	a.servePage(PLAYER_PAGE)(w, r)
}

func (a *API) serveMap(w http.ResponseWriter, r *http.Request) {
	name := maps.SecureFilename(chi.URLParam(r, "*"))
	if !a.content.HasAllowedExtension(name) {
		writeError(w, http.StatusNotFound, "File type not allowed")
		return
	}

	if !a.content.Exists(name) {
		writeError(w, http.StatusNotFound, "Map image file not found")
		return
	}

	http.ServeFile(w, r, a.content.Path(name))
}

func (a *API) serveShader(w http.ResponseWriter, r *http.Request) {
	id := maps.SecureFilename(chi.URLParam(r, "id"))
	shader := maps.SecureFilename(chi.URLParam(r, "shader"))

	if shader != filters.VERTEX_SHADER && shader != filters.FRAGMENT_SHADER {
		writeError(w, http.StatusBadRequest, "Invalid shader type")
		return
	}

	descriptor, ok := a.catalog.Find(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Shader file not found")
		return
	}

	declared := descriptor.VertexShaderPath
	if shader == filters.FRAGMENT_SHADER {
		declared = descriptor.FragmentShaderPath
	}

	path := filepath.Join(a.catalog.Root(), descriptor.ID, shader)
	if declared == "" || !assets.FileExists(path) {
		writeError(w, http.StatusNotFound, "Shader file not found")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger := a.Logger()
		logger.Error().Err(err).Str("filter", id).Msg("failed to read shader")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

func (a *API) listFilters(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any)
	for _, descriptor := range a.catalog.List() {
		out[descriptor.ID] = descriptor.Public()
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listMaps(w http.ResponseWriter, r *http.Request) {
	names, err := a.content.List()
	if err != nil {
		logger := a.Logger()
		logger.Error().Err(err).Msg("failed to list map content")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (a *API) uploadMap(w http.ResponseWriter, r *http.Request) {
	logger := a.Logger()

	err := r.ParseMultipartForm(UPLOAD_MEMORY)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}

	file, header, err := r.FormFile(UPLOAD_FIELD)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}

	if !a.content.HasAllowedExtension(header.Filename) {
		writeError(
			w,
			http.StatusBadRequest,
			"File type not allowed. Allowed: "+strings.Join(a.content.Extensions(), ", "),
		)
		return
	}

	name, err := a.content.Save(header.Filename, file)
	if err != nil {
		logger.Error().Err(err).Str("map", header.Filename).Msg("failed to save upload")
		writeError(w, http.StatusInternalServerError, "Could not save")
		return
	}

	logger = logger.With().Str("map", name).Logger()
	ctx := r.Context()

	_, err = a.configs.Read(ctx, name)
	switch {
	case errors.Is(err, assets.Missing):
		logger.Info().Msg("creating default config for uploaded map")

		initial := a.resolver.Resolve(ctx, name)
		if opt.IsNone(initial) {
			logger.Warn().Msg("could not generate default state")
			break
		}

		err = a.configs.Write(ctx, name, initial.Value)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to save default config")
		}
	case err != nil:
		logger.Warn().Err(err).Msg("existing config unreadable")
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"filename": name,
	})
}

func (a *API) configName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := maps.SecureFilename(chi.URLParam(r, "*"))
	if !a.content.HasAllowedExtension(name) {
		writeError(w, http.StatusBadRequest, "Invalid file type")
		return "", false
	}
	return name, true
}

func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	name, ok := a.configName(w, r)
	if !ok {
		return
	}

	resolved := a.resolver.Resolve(r.Context(), name)
	if opt.IsNone(resolved) {
		writeError(w, http.StatusNotFound, "Map file not found")
		return
	}

	writeJSON(w, http.StatusOK, resolved.Value)
}

func (a *API) saveConfig(w http.ResponseWriter, r *http.Request) {
	name, ok := a.configName(w, r)
	if !ok {
		return
	}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType != "application/json" {
		writeError(w, http.StatusBadRequest, "Request must be JSON")
		return
	}

	var document map[string]any
	err := json.NewDecoder(r.Body).Decode(&document)
	if err != nil || document == nil {
		writeError(w, http.StatusBadRequest, "Invalid config data structure")
		return
	}

	for _, key := range REQUIRED_CONFIG_KEYS {
		if _, ok := document[key]; !ok {
			writeError(w, http.StatusBadRequest, "Invalid config data structure")
			return
		}
	}

	config, err := state.FromDocument(document)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := a.Logger().With().Str("map", name).Logger()

	err = a.configs.Write(r.Context(), name, config)
	if err != nil {
		logger.Error().Err(err).Msg("failed to save map config")
		writeError(w, http.StatusInternalServerError, "Could not save map configuration")
		return
	}

	logger.Info().Msg("map config saved")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
