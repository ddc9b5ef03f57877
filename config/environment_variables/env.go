package environment_variables

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

type EnvironmentVariable struct {
	HTTP_PORT               int
	SCOPE_URL               string
	ENTRY_DOCUMENT          string
	MANIFEST_PATH           string
	MANIFEST_WATCH_SCHEDULE string
	CACHE_TYPE              string
	CACHE_URL               string
	CACHE_PASSWORD          string
	CACHE_DB                string
	DB_DSN                  string
	DB_READ_DSN             string
	REPLY_TIMEOUT           time.Duration
	FETCH_TIMEOUT           time.Duration
	ALLOWED_CORS_HOSTS      []string
	PROXY_ALLOWED_HOSTS     []string
	PUSH_JWT_SECRET         []byte
	ADMIN_JWT_SECRET        []byte
	LOG_LEVEL               string
	LOG_FORMAT              string
}

// Defaults returns the values used for variables that are not set.
func Defaults() EnvironmentVariable {
	return EnvironmentVariable{
		HTTP_PORT:               8080,
		SCOPE_URL:               "http://localhost:8080/",
		ENTRY_DOCUMENT:          "index.html",
		MANIFEST_PATH:           "manifest.json",
		MANIFEST_WATCH_SCHEDULE: "* * * * *",
		CACHE_TYPE:              "memory",
		REPLY_TIMEOUT:           10 * time.Second,
		FETCH_TIMEOUT:           60 * time.Second,
		LOG_LEVEL:               "info",
		LOG_FORMAT:              "text",
	}
}

func (ev *EnvironmentVariable) LoadFromEnv() {
	ev.loadFrom(os.Getenv)
}

func (ev *EnvironmentVariable) loadFrom(getenv func(string) string) {
	v := reflect.ValueOf(ev).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		envKey := field.Name
		envValue := getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setField(v.Field(i), envValue); err != nil {
			fmt.Printf("Invalid SYSENV %s: %v\n", envKey, err)
		}
	}
}

func setField(f reflect.Value, envValue string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(envValue)
	case reflect.Bool:
		b, err := strconv.ParseBool(envValue)
		if err != nil {
			return err
		}
		f.SetBool(b)
	case reflect.Int, reflect.Int64:
		if f.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(envValue)
			if err != nil {
				return err
			}
			f.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(envValue, 10, 64)
		if err != nil {
			return err
		}
		f.SetInt(n)
	case reflect.Slice:
		switch f.Type().Elem().Kind() {
		case reflect.Uint8:
			f.SetBytes([]byte(envValue))
		case reflect.String:
			parts := strings.Split(envValue, ",")
			values := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					values = append(values, p)
				}
			}
			f.Set(reflect.ValueOf(values))
		default:
			return fmt.Errorf("unsupported slice type %s", f.Type())
		}
	default:
		return fmt.Errorf("unsupported type %s", f.Type())
	}
	return nil
}

// ScopeURL parses SCOPE_URL. The path always ends with a slash so relative
// asset names resolve beneath it.
func (ev *EnvironmentVariable) ScopeURL() (*url.URL, error) {
	u, err := url.Parse(ev.SCOPE_URL)
	if err != nil {
		return nil, fmt.Errorf("invalid SCOPE_URL %q: %w", ev.SCOPE_URL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("SCOPE_URL %q must be absolute", ev.SCOPE_URL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

var current atomic.Pointer[EnvironmentVariable]

func init() {
	ev := Defaults()
	current.Store(&ev)
}

// Current returns the active configuration. Callers must treat it as read-only;
// a reload swaps in a new value instead of mutating this one.
func Current() *EnvironmentVariable {
	return current.Load()
}

// Reload reads the process environment over the defaults and makes the result
// current.
func Reload() *EnvironmentVariable {
	ev := Defaults()
	ev.LoadFromEnv()
	current.Store(&ev)
	return &ev
}

// Replace makes ev current and returns the configuration it replaced.
func Replace(ev EnvironmentVariable) *EnvironmentVariable {
	return current.Swap(&ev)
}
