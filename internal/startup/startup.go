package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"thumbnailfield/internal/codec"
	"thumbnailfield/internal/imagefield"
	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/naming"
	"thumbnailfield/internal/pattern"
	"thumbnailfield/internal/transform"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// ThumbnailConfig holds the image field settings.
type ThumbnailConfig struct {
	RemovePrevious   bool
	DefaultTransform string
	DefaultOptions   map[string]any
	FilenameTemplate string
	SaveOptions      map[string]any
	MaxImagePixels   int
}

// PatternConfig holds the pattern declarations of the entry image field.
type PatternConfig struct {
	Original   any
	Thumbnails map[string]any
}

// Config holds all application configuration
type Config struct {
	ConfigFile      string
	MediaDir        string
	MediaURL        string
	DatabaseDir     string
	Port            string
	UploadTo        string
	LogStaticFiles  bool
	LogHealthChecks bool
	MetricsEnabled  bool

	Thumbnails ThumbnailConfig
	Patterns   PatternConfig

	// Derived paths
	DatabasePath string
}

// envBindings maps viper keys to the environment variables that set them.
var envBindings = map[string]string{
	"media_dir":                    "MEDIA_DIR",
	"media_url":                    "MEDIA_URL",
	"database_dir":                 "DATABASE_DIR",
	"port":                         "PORT",
	"metrics_enabled":              "METRICS_ENABLED",
	"log_level":                    "LOG_LEVEL",
	"upload_to":                    "UPLOAD_TO",
	"thumbnails.remove_previous":   "THUMBNAILFIELD_REMOVE_PREVIOUS",
	"thumbnails.default_transform": "THUMBNAILFIELD_DEFAULT_TRANSFORM",
	"thumbnails.default_options":   "THUMBNAILFIELD_DEFAULT_OPTIONS",
	"thumbnails.filename_template": "THUMBNAILFIELD_FILENAME_TEMPLATE",
	"thumbnails.save_options":      "THUMBNAILFIELD_SAVE_OPTIONS",
	"thumbnails.max_image_pixels":  "MAX_IMAGE_PIXELS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("media_dir", "/media")
	v.SetDefault("media_url", "/media/")
	v.SetDefault("database_dir", "/database")
	v.SetDefault("port", "8080")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("upload_to", "img/thumbnails")
	v.SetDefault("thumbnails.remove_previous", true)
	v.SetDefault("thumbnails.default_transform", pattern.DefaultTransform)
	v.SetDefault("thumbnails.default_options", map[string]any{"filter": "lanczos"})
	v.SetDefault("thumbnails.filename_template", string(naming.DefaultTemplate))
	v.SetDefault("thumbnails.save_options", map[string]any{})
	v.SetDefault("thumbnails.max_image_pixels", codec.DefaultMaxPixels)
	v.SetDefault("patterns.thumbnails", map[string]any{
		"large": []any{[]any{640, 480, "resize"}},
		"small": []any{320, 240, "crop", map[string]any{"left": 0, "upper": 0}},
		"tiny":  []any{160, 120},
	})
}

func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// LoadConfig loads and validates configuration from the environment and
// the optional CONFIG_FILE.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	config, err := readConfig(getEnv("CONFIG_FILE", ""))
	if err != nil {
		return nil, err
	}
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(config.MediaDir, "media"); err != nil {
		return nil, fmt.Errorf("media directory error: %w", err)
	}
	if err := testWriteAccess(config.MediaDir); err != nil {
		return nil, fmt.Errorf("media directory is not writable (required for uploads and thumbnails): %w", err)
	}
	logging.Info("  [OK] Media directory is writable")

	if err := ensureDirectory(config.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	return config, nil
}

// ReadConfig loads configuration from the environment and the optional
// CONFIG_FILE without the banner or directory setup. Used by the CLI.
func ReadConfig() (*Config, error) {
	return readConfig(getEnv("CONFIG_FILE", ""))
}

// readConfig builds the Config without touching the filesystem beyond the
// config file itself.
func readConfig(configFile string) (*Config, error) {
	v, err := newViper(configFile)
	if err != nil {
		return nil, err
	}

	if lvl := v.GetString("log_level"); lvl != "" {
		level, err := logging.ParseLevel(lvl)
		if err != nil {
			logging.Warn("  Invalid LOG_LEVEL %q, using info", lvl)
		}
		if os.Getenv("DEBUG") == "" {
			logging.SetLevel(level)
		}
	}

	// Nested keys are read one by one so env overrides apply. Option maps
	// arrive as JSON strings when set from the environment.
	thumbs := ThumbnailConfig{
		RemovePrevious:   v.GetBool("thumbnails.remove_previous"),
		DefaultTransform: v.GetString("thumbnails.default_transform"),
		DefaultOptions:   v.GetStringMap("thumbnails.default_options"),
		FilenameTemplate: v.GetString("thumbnails.filename_template"),
		SaveOptions:      v.GetStringMap("thumbnails.save_options"),
		MaxImagePixels:   v.GetInt("thumbnails.max_image_pixels"),
	}
	patterns := PatternConfig{
		Original:   v.Get("patterns.original"),
		Thumbnails: v.GetStringMap("patterns.thumbnails"),
	}

	mediaDir, err := filepath.Abs(v.GetString("media_dir"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	databaseDir, err := filepath.Abs(v.GetString("database_dir"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	config := &Config{
		ConfigFile:      configFile,
		MediaDir:        mediaDir,
		MediaURL:        v.GetString("media_url"),
		DatabaseDir:     databaseDir,
		Port:            v.GetString("port"),
		UploadTo:        strings.Trim(v.GetString("upload_to"), "/"),
		LogStaticFiles:  getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
		MetricsEnabled:  v.GetBool("metrics_enabled"),
		Thumbnails:      thumbs,
		Patterns:        patterns,
		DatabasePath:    filepath.Join(databaseDir, "thumbnailfield.db"),
	}

	if _, err := config.FieldSettings(); err != nil {
		return nil, err
	}
	return config, nil
}

// FieldSettings converts the thumbnail configuration into image field
// settings.
func (c *Config) FieldSettings() (imagefield.Settings, error) {
	save, err := codec.ParseSaveOptions(c.Thumbnails.SaveOptions)
	if err != nil {
		return imagefield.Settings{}, fmt.Errorf("THUMBNAILFIELD_SAVE_OPTIONS: %w", err)
	}
	tmpl := naming.Template(c.Thumbnails.FilenameTemplate)
	if err := tmpl.Validate(); err != nil {
		return imagefield.Settings{}, fmt.Errorf("THUMBNAILFIELD_FILENAME_TEMPLATE: %w", err)
	}

	s := imagefield.DefaultSettings()
	s.RemovePrevious = c.Thumbnails.RemovePrevious
	s.DefaultTransform = c.Thumbnails.DefaultTransform
	s.DefaultOptions = transform.Options(c.Thumbnails.DefaultOptions)
	s.FilenameTemplate = tmpl
	s.SaveOptions = save
	s.MaxImagePixels = c.Thumbnails.MaxImagePixels
	return s, nil
}

// PatternDecls returns the declarations for imagefield.NewField.
func (c *Config) PatternDecls() map[string]any {
	decls := make(map[string]any, len(c.Patterns.Thumbnails)+1)
	for name, decl := range c.Patterns.Thumbnails {
		decls[name] = decl
	}
	if c.Patterns.Original != nil {
		decls[pattern.Original] = c.Patterns.Original
	}
	return decls
}

func logConfig(c *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if c.ConfigFile != "" {
		logging.Info("  CONFIG_FILE:         %s", c.ConfigFile)
	}
	logging.Info("  MEDIA_DIR:           %s", c.MediaDir)
	logging.Info("  MEDIA_URL:           %s", c.MediaURL)
	logging.Info("  DATABASE_DIR:        %s", c.DatabaseDir)
	logging.Info("  PORT:                %s", c.Port)
	logging.Info("  METRICS_ENABLED:     %v", c.MetricsEnabled)
	logging.Info("  UPLOAD_TO:           %s", c.UploadTo)
	logging.Info("  LOG_STATIC_FILES:    %v", c.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	logging.Info("  REMOVE_PREVIOUS:     %v", c.Thumbnails.RemovePrevious)
	logging.Info("  DEFAULT_TRANSFORM:   %s", c.Thumbnails.DefaultTransform)
	logging.Info("  DEFAULT_OPTIONS:     %v", c.Thumbnails.DefaultOptions)
	logging.Info("  FILENAME_TEMPLATE:   %s", c.Thumbnails.FilenameTemplate)
	logging.Info("  SAVE_OPTIONS:        %v", c.Thumbnails.SaveOptions)
	logging.Info("  MAX_IMAGE_PIXELS:    %d", c.Thumbnails.MaxImagePixels)
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogVipsInit logs whether the libvips decode fallback is available.
func LogVipsInit(err error) {
	if err != nil {
		logging.Warn("  libvips unavailable, only Go decoders will be used: %v", err)
		return
	}
	logging.Info("  [OK] libvips decode fallback enabled")
}

// LogFieldInit logs the thumbnails declared for the entry image field.
func LogFieldInit(field *imagefield.Field) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("IMAGE FIELD")
	logging.Info("------------------------------------------------------------")
	if chain, ok := field.Chain(pattern.Original); ok && len(chain) > 0 {
		logging.Info("  %-12s %v", "<original>", []pattern.Pattern(chain))
	}
	for _, name := range field.Names() {
		chain, _ := field.Chain(name)
		logging.Info("  %-12s %v", name, []pattern.Pattern(chain))
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			// Prefix routes without a template, e.g. the media file server
			pathTemplate, err = route.GetPathRegexp()
			if err != nil {
				return nil
			}
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logStaticFiles {
		logging.Info("  Media file logging: ON")
	} else {
		logging.Info("  Media file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Application:     http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
  _   _                     _             _ _  __ _      _     _
 | |_| |__  _   _ _ __ ___ | |__  _ __   __ _(_) |/ _(_) ___| | __| |
 | __| '_ \| | | | '_ ' _ \| '_ \| '_ \ / _' | | | |_| |/ _ \ |/ _' |
 | |_| | | | |_| | | | | | | |_) | | | | (_| | | |  _| |  __/ | (_| |
  \__|_| |_|\__,_|_| |_| |_|_.__/|_| |_|\__,_|_|_|_| |_|\___|_|\__,_|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
