// Package config loads session and logging settings from a TOML file, an
// optional .env file and PDFSESSION_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/wudi/pdfsamples/observability"
	"github.com/wudi/pdfsamples/surface"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PDFSESSION_"

// File is the on-disk configuration.
//
//	[session]
//	temp_storage = "memory"
//	memory_limit = 67108864
//	extensions   = ["forms"]
//
//	[log]
//	level  = "debug"
//	format = "console"
type File struct {
	Session surface.Config          `toml:"session"`
	Log     observability.LogConfig `toml:"log"`
}

type options struct {
	envFile string
	lookup  func(string) (string, bool)
}

type Option func(*options)

// WithEnvFile reads overrides from a dotenv file. A missing file is
// ignored.
func WithEnvFile(path string) Option {
	return func(o *options) { o.envFile = path }
}

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookup = fn }
}

// Load reads path, which may be empty, applies overrides and validates the
// result.
func Load(path string, opts ...Option) (File, error) {
	o := options{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	var f File
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("read config: %w", err)
		}
		md, err := toml.Decode(string(content), &f)
		if err != nil {
			return File{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return File{}, fmt.Errorf("parse config %s: unknown key %q", path, undecoded[0].String())
		}
	}

	env := map[string]string{}
	if o.envFile != "" {
		dotenv, err := godotenv.Read(o.envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return File{}, fmt.Errorf("read %s: %w", o.envFile, err)
		}
		for k, v := range dotenv {
			env[k] = v
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := o.lookup(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := env[EnvPrefix+key]
		return v, ok
	}
	if err := f.override(lookup); err != nil {
		return File{}, err
	}

	f.Session = f.Session.Defaults()
	if err := Validate(f); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f *File) override(lookup func(string) (string, bool)) error {
	if v, ok := lookup("TEMP_STORAGE"); ok {
		f.Session.TempStorage = surface.TempStorage(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup("TEMP_DIR"); ok {
		f.Session.TempDir = v
	}
	if v, ok := lookup("MEMORY_LIMIT"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sMEMORY_LIMIT: %w", EnvPrefix, err)
		}
		f.Session.MemoryLimit = n
	}
	if v, ok := lookup("EXTENSIONS"); ok {
		f.Session.Extensions = nil
		for _, ext := range strings.Split(v, ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				f.Session.Extensions = append(f.Session.Extensions, surface.Extension(ext))
			}
		}
	}
	if v, ok := lookup("STRICT"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sSTRICT: %w", EnvPrefix, err)
		}
		f.Session.Strict = b
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		f.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		f.Log.Format = v
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field against its constraints and reports the
// offending keys by their TOML names.
func Validate(f File) error {
	err := validate.Struct(f)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "File.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %q fails %s=%s", key, fmt.Sprint(fe.Value()), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %q fails %s", key, fmt.Sprint(fe.Value()), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
