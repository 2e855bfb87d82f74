package core

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v2"
)

// Configuration constants
const (
	DefaultPort          = 8080
	DefaultHostname      = "localhost"
	DefaultTitle         = "inkwell site"
	DefaultLanguage      = "en"
	DefaultFavicon       = "/assets/favicon.png"
	DefaultSummaryLength = 70
	DefaultFeedLimit     = 15
	DefaultWordsPerMin   = 200
	DefaultChromaStyle   = "monokai"
	MinPort              = 1
	MaxPort              = 65535
	MaxHostnameLength    = 253
	MaxLabelLength       = 63
	MaxTitleLength       = 200
	MaxDescLength        = 500
)

// Validation errors
var (
	ErrInvalidPort       = errors.New("port must be between 1 and 65535")
	ErrInvalidHostname   = errors.New("hostname is invalid")
	ErrInvalidBaseURL    = errors.New("base-url must be an absolute http(s) URL")
	ErrEmptyDirectory    = errors.New("directory cannot be empty")
	ErrDirectoryNotExist = errors.New("directory does not exist")
	ErrInvalidPath       = errors.New("path contains invalid characters")
	ErrMissingOutput     = errors.New("output directory is required")
	ErrMissingNewPath    = errors.New("new requires a content path like posts/my-post.md")
	ErrConfigNotFound    = errors.New("configuration file not found")
	ErrInvalidYAML       = errors.New("invalid YAML configuration")
	ErrTLSWithoutDomains = errors.New("tls enabled but no domains configured")
)

type Server struct {
	Port     int    `yaml:"port"`
	Hostname string `yaml:"hostname"`
	TLS      TLS    `yaml:"tls"`

	// RateLimit is the allowed number of requests per minute and client.
	// Zero disables rate limiting.
	RateLimit int `yaml:"rate-limit"`
}

func (s *Server) Validate() error {
	if s.Port < MinPort || s.Port > MaxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, s.Port)
	}

	if s.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative: got %d", s.RateLimit)
	}

	if err := validateHostname(s.Hostname); err != nil {
		return err
	}

	return s.TLS.Validate()
}

// TLS configures automatic certificates from an ACME directory such as
// Let's Encrypt. When enabled the server answers HTTPS on the configured
// port and keeps an HTTP listener on :80 for the http-01 challenge.
type TLS struct {
	Enabled  bool     `yaml:"enabled"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache-dir"`
	Email    string   `yaml:"email"`
}

func (t *TLS) Validate() error {
	if !t.Enabled {
		return nil
	}
	if len(t.Domains) == 0 {
		return ErrTLSWithoutDomains
	}
	for _, domain := range t.Domains {
		if !isValidHostname(domain) {
			return fmt.Errorf("%w: %s", ErrInvalidHostname, domain)
		}
	}
	if t.CacheDir != "" && !isValidPath(t.CacheDir) {
		return fmt.Errorf("%w: tls cache directory", ErrInvalidPath)
	}
	return nil
}

// validateHostname accepts an empty hostname (bind to all interfaces),
// an IP address, or a DNS name.
func validateHostname(hostname string) error {
	if hostname == "" || net.ParseIP(hostname) != nil {
		return nil
	}
	if !isValidHostname(hostname) {
		return fmt.Errorf("%w: %s", ErrInvalidHostname, hostname)
	}
	return nil
}

// isValidHostname checks the RFC 1123 shape of a DNS name: dot-separated
// labels of letters, digits and inner hyphens. Leading, trailing and
// doubled dots all produce an empty label and fail the length check.
func isValidHostname(hostname string) bool {
	if hostname == "" || len(hostname) > MaxHostnameLength {
		return false
	}

	for _, label := range strings.Split(hostname, ".") {
		if !isValidLabel(label) {
			return false
		}
	}
	return true
}

func isValidLabel(label string) bool {
	if len(label) == 0 || len(label) > MaxLabelLength {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}

	for i := 0; i < len(label); i++ {
		switch c := label[i]; {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

// Site holds the publication-wide settings that templates, feeds and the
// sitemap read: the title, the canonical base URL and so on.
type Site struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	BaseURL     string `yaml:"base-url"`
	Language    string `yaml:"language"`
	Copyright   string `yaml:"copyright"`
	Author      string `yaml:"author"`
}

func (s *Site) Validate() error {
	if len(s.Title) > MaxTitleLength {
		return fmt.Errorf("title too long: %d > %d", len(s.Title), MaxTitleLength)
	}

	if len(s.Description) > MaxDescLength {
		return fmt.Errorf("description too long: %d > %d", len(s.Description), MaxDescLength)
	}

	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %s", ErrInvalidBaseURL, s.BaseURL)
		}
	}

	return nil
}

type Branding struct {
	Favicon string `yaml:"favicon"`
	CssFile string `yaml:"cssfile"`
}

func (b *Branding) Validate() error {
	if b.Favicon != "" && !isValidPath(b.Favicon) {
		return fmt.Errorf("%w: favicon", ErrInvalidPath)
	}
	if b.CssFile != "" && !isValidPath(b.CssFile) {
		return fmt.Errorf("%w: cssfile", ErrInvalidPath)
	}
	return nil
}

// Content controls which pages make it into the rendered site and how
// summaries and feeds are produced from them.
type Content struct {
	Drafts        bool `yaml:"drafts"`
	Future        bool `yaml:"future"`
	SummaryLength int  `yaml:"summary-length"`
	FeedLimit     int  `yaml:"feed-limit"`
	WordsPerMin   int  `yaml:"words-per-minute"`
}

func (c *Content) Validate() error {
	if c.SummaryLength < 0 {
		return fmt.Errorf("summary-length must not be negative: %d", c.SummaryLength)
	}
	if c.FeedLimit < 0 {
		return fmt.Errorf("feed-limit must not be negative: %d", c.FeedLimit)
	}
	if c.WordsPerMin < 0 {
		return fmt.Errorf("words-per-minute must not be negative: %d", c.WordsPerMin)
	}
	return nil
}

// Markdown controls the HTML renderer.
type Markdown struct {
	Style       string `yaml:"style"`
	LineNumbers bool   `yaml:"line-numbers"`
	Sanitize    bool   `yaml:"sanitize"`
}

func (m *Markdown) Validate() error {
	// Unknown chroma styles silently fall back inside the highlighter,
	// so only reject obviously broken values.
	if strings.ContainsAny(m.Style, " \t/\\") {
		return fmt.Errorf("invalid highlight style: %q", m.Style)
	}
	return nil
}

type Plugins map[string]map[string]string

func (p Plugins) Validate() error {
	for name, settings := range p {
		if name == "" {
			return errors.New("plugin name cannot be empty")
		}
		for key := range settings {
			if key == "" {
				return fmt.Errorf("plugin %s has empty configuration key", name)
			}
		}
	}
	return nil
}

type Config struct {
	FilePath      string
	SiteDirectory string
	Mode          string
	OutDirectory  string
	BuildDrafts   bool
	BuildFuture   bool
	Strict        bool

	// Scaffold parameters for the new command.
	ScaffoldPath   string
	ScaffoldTitle  string
	ScaffoldFormat string

	Server   Server   `yaml:"server"`
	Site     Site     `yaml:"site"`
	Branding Branding `yaml:"branding"`
	Content  Content  `yaml:"content"`
	Markdown Markdown `yaml:"markdown"`
	Plugins  Plugins  `yaml:"plugins"`
}

func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"server", c.Server.Validate},
		{"site", c.Site.Validate},
		{"branding", c.Branding.Validate},
		{"content", c.Content.Validate},
		{"markdown", c.Markdown.Validate},
		{"plugins", c.Plugins.Validate},
	}

	for _, section := range sections {
		if err := section.validate(); err != nil {
			return fmt.Errorf("%s configuration error: %w", section.name, err)
		}
	}
	return nil
}

// IncludeDrafts reports whether draft pages should be rendered. Drafts
// can be enabled permanently in site.yaml or per invocation with -D.
func (c *Config) IncludeDrafts() bool {
	return c.Content.Drafts || c.BuildDrafts
}

// IncludeFuture reports whether pages dated in the future should be
// rendered. Enabled in site.yaml or per invocation with -F.
func (c *Config) IncludeFuture() bool {
	return c.Content.Future || c.BuildFuture
}

// BaseURL returns the canonical site URL with a trailing slash, falling
// back to the configured host and port for local serving.
func (c *Config) BaseURL() string {
	base := c.Site.BaseURL
	if base == "" {
		scheme := "http"
		if c.Server.TLS.Enabled {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s:%d/", scheme, c.Server.Hostname, c.Server.Port)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// validateSiteDirectory checks that the site directory names an
// existing, well-formed path.
func (c *Config) validateSiteDirectory() error {
	switch {
	case c.SiteDirectory == "":
		return fmt.Errorf("%w: site directory", ErrEmptyDirectory)
	case !isValidPath(c.SiteDirectory):
		return fmt.Errorf("%w: site directory", ErrInvalidPath)
	}

	if _, err := os.Stat(c.SiteDirectory); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrDirectoryNotExist, c.SiteDirectory)
	}
	return nil
}

func (c *Config) validateOutDirectory() error {
	if c.OutDirectory == "" {
		return ErrMissingOutput
	}
	if !isValidPath(c.OutDirectory) {
		return fmt.Errorf("%w: output directory", ErrInvalidPath)
	}
	return nil
}

// isValidPath rejects traversal sequences and characters that have no
// business in a configured path.
func isValidPath(path string) bool {
	if path == "" {
		return false
	}
	if strings.Contains(path, "../") || strings.Contains(path, "..\\") {
		return false
	}
	return !strings.ContainsAny(path, "\x00<>|?*")
}

// Options defines the command-line options structure
type Options struct {
	Port     int    `short:"p" long:"port" description:"Port to run the HTTP server on" default:"8080"`
	Hostname string `short:"h" long:"hostname" description:"Hostname of the HTTP server" default:"localhost"`
	Out      string `short:"o" long:"out" description:"Output directory"`
	Drafts   bool   `short:"D" long:"drafts" description:"Include draft pages"`
	Future   bool   `short:"F" long:"future" description:"Include pages dated in the future"`
	LogLevel string `long:"log-level" description:"Minimum log level (debug, info, warn, error)" default:"info"`
	Help     bool   `long:"help" description:"Display help information"`
}

func (o *Options) Validate() error {
	if o.Port < MinPort || o.Port > MaxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, o.Port)
	}
	if err := validateHostname(o.Hostname); err != nil {
		return err
	}
	if o.Out != "" && !isValidPath(o.Out) {
		return fmt.Errorf("%w: output directory", ErrInvalidPath)
	}
	return nil
}

// Commands defines the available subcommands
type Commands struct {
	Run     RunCommand     `command:"run" description:"Serve the site from a directory"`
	Build   BuildCommand   `command:"build" description:"Render the site into static files"`
	Check   CheckCommand   `command:"check" description:"Verify content without rendering"`
	New     NewCommand     `command:"new" description:"Scaffold a new content file"`
	Dump    DumpCommand    `command:"dump" description:"Write the processed site state to disk"`
	Version VersionCommand `command:"version" description:"Print the build version"`
}

type RunCommand struct {
	Args struct {
		Directory string `positional-arg-name:"directory" description:"Directory to serve the site from"`
	} `positional-args:"yes" required:"yes"`
}

type BuildCommand struct {
	Args struct {
		Directory string `positional-arg-name:"directory" description:"Directory with source files"`
	} `positional-args:"yes" required:"yes"`
}

type CheckCommand struct {
	Strict bool `long:"strict" description:"Treat warnings as errors"`
	Args   struct {
		Directory string `positional-arg-name:"directory" description:"Directory with source files"`
	} `positional-args:"yes" required:"yes"`
}

type NewCommand struct {
	Title  string `short:"t" long:"title" description:"Title for the new page (defaults to the file name)"`
	Format string `long:"format" description:"Front matter format (yaml or toml)" default:"yaml"`
	Args   struct {
		Directory string `positional-arg-name:"directory" description:"Site directory"`
		Path      string `positional-arg-name:"path" description:"Content path, e.g. posts/my-post.md"`
	} `positional-args:"yes" required:"yes"`
}

type DumpCommand struct {
	Args struct {
		Directory string `positional-arg-name:"directory" description:"Site directory to process"`
	} `positional-args:"yes" required:"yes"`
}

type VersionCommand struct{}

// ReadConfigYaml loads a YAML configuration file on top of config,
// which keeps its previous values for every key the file omits, then
// validates the result.
func ReadConfigYaml(config *Config, filePath string) error {
	if filePath == "" {
		return fmt.Errorf("%w: empty file path", ErrInvalidPath)
	}
	if !isValidPath(filePath) {
		return fmt.Errorf("%w: %s", ErrInvalidPath, filePath)
	}
	config.FilePath = filePath

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, filePath)
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidYAML, err.Error())
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// NewDefaultConfig returns the configuration used when site.yaml is
// missing or silent on a key.
func NewDefaultConfig() Config {
	config := Config{Plugins: make(Plugins)}
	config.Server.Port = DefaultPort
	config.Server.Hostname = DefaultHostname
	config.Site.Title = DefaultTitle
	config.Site.Language = DefaultLanguage
	config.Branding.Favicon = DefaultFavicon
	config.Content.SummaryLength = DefaultSummaryLength
	config.Content.FeedLimit = DefaultFeedLimit
	config.Content.WordsPerMin = DefaultWordsPerMin
	config.Markdown.Style = DefaultChromaStyle
	config.Markdown.LineNumbers = true
	return config
}

// ParseCommandLineArguments parses os.Args into a validated Config.
func ParseCommandLineArguments() (Config, error) {
	config := NewDefaultConfig()

	var opts Options
	var commands Commands

	parser := flags.NewParser(&opts, flags.Default)
	subcommands := []struct {
		name, short, long string
		data              any
	}{
		{"run", "Serve the site from a directory",
			"Watch the specified directory and serve the rendered site over HTTP", &commands.Run},
		{"build", "Render the site into static files",
			"Render static html, feeds and sitemap for the specified directory", &commands.Build},
		{"check", "Verify content without rendering",
			"Parse and validate front matter, links and code samples", &commands.Check},
		{"new", "Scaffold a new content file",
			"Create a content file with front matter filled in", &commands.New},
		{"dump", "Write the processed site state to disk (for testing)",
			"Process the specified directory, then write out the whole state", &commands.Dump},
		{"version", "Print the build version",
			"Print the build version", &commands.Version},
	}
	for _, sub := range subcommands {
		if _, err := parser.AddCommand(sub.name, sub.short, sub.long, sub.data); err != nil {
			return config, fmt.Errorf("failed to register %s command: %w", sub.name, err)
		}
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return config, fmt.Errorf("failed to parse command line arguments: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return config, fmt.Errorf("invalid command line options: %w", err)
	}

	config.Server.Port = opts.Port
	config.Server.Hostname = opts.Hostname
	config.BuildDrafts = opts.Drafts
	config.BuildFuture = opts.Future
	if opts.Out != "" {
		config.OutDirectory = opts.Out
	}
	GlobalLogger.SetLevel(ParseLogLevel(opts.LogLevel))

	if parser.Active == nil {
		return config, errors.New("no command specified")
	}

	// Commands that render output need -o, the rest only a site
	// directory. version runs before any site is read and skips both.
	config.Mode = parser.Active.Name
	needsOut := false

	switch config.Mode {
	case "run":
		config.SiteDirectory = commands.Run.Args.Directory
	case "build":
		config.SiteDirectory = commands.Build.Args.Directory
		needsOut = true
	case "check":
		config.SiteDirectory = commands.Check.Args.Directory
		config.Strict = commands.Check.Strict
	case "new":
		config.SiteDirectory = commands.New.Args.Directory
		config.ScaffoldPath = commands.New.Args.Path
		config.ScaffoldTitle = commands.New.Title
		config.ScaffoldFormat = strings.ToLower(commands.New.Format)
		if config.ScaffoldPath == "" {
			return config, ErrMissingNewPath
		}
		if f := config.ScaffoldFormat; f != "yaml" && f != "toml" {
			return config, fmt.Errorf("unsupported front matter format: %s", f)
		}
	case "dump":
		config.SiteDirectory = commands.Dump.Args.Directory
		needsOut = true
	case "version":
		return config, nil
	default:
		return config, fmt.Errorf("unknown command: %s", config.Mode)
	}

	if err := config.validateSiteDirectory(); err != nil {
		return config, err
	}
	if needsOut {
		if err := config.validateOutDirectory(); err != nil {
			return config, err
		}
	}

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
