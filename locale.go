package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lang/*.yaml
var bundledLocales embed.FS

type Locale struct {
	translations map[string]string
	locale       string
}

var globalLocale *Locale

var countryLocales = map[string]string{
	"us": "en_US",
	"ca": "en_CA",
	"de": "de_DE",
}

// InitLocale initializes the global locale. An empty locale falls back to
// the system locale.
func InitLocale(locale string) error {
	if locale == "" {
		locale = DetectSystemLocale()
	}

	l, err := LoadLocale(locale)
	if err != nil {
		// Fallback to English
		fmt.Printf("Warning: Failed to load locale '%s', falling back to en_US: %v\n", locale, err)
		l, err = LoadLocale("en_US")
		if err != nil {
			return fmt.Errorf("failed to load fallback locale en_US: %w", err)
		}
	}

	globalLocale = l
	return nil
}

// LocaleForCountry maps a storefront country code to the locale whose copy
// the storefront renders for it.
func LocaleForCountry(country string) string {
	if l, ok := countryLocales[strings.ToLower(country)]; ok {
		return l
	}
	return "en_US"
}

// DetectSystemLocale detects the user's system locale
func DetectSystemLocale() string {
	for _, env := range []string{"LANG", "LC_ALL", "LC_MESSAGES"} {
		if locale := os.Getenv(env); locale != "" {
			// e.g. "en_US.UTF-8"
			parts := strings.Split(locale, ".")
			if len(parts) > 0 && parts[0] != "" && parts[0] != "C" && parts[0] != "POSIX" {
				return parts[0]
			}
		}
	}

	if runtime.GOOS == "windows" {
		if locale := os.Getenv("LANG"); locale != "" {
			return locale
		}
	}

	return "en_US"
}

// LoadLocale loads lang/<locale>.yaml from next to the executable, falling
// back to the copy built into the binary.
func LoadLocale(locale string) (*Locale, error) {
	data, err := readLocaleFile(locale)
	if err != nil {
		return nil, err
	}

	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse locale %s: %w", locale, err)
	}

	return &Locale{
		translations: translations,
		locale:       locale,
	}, nil
}

func readLocaleFile(locale string) ([]byte, error) {
	if exePath, err := os.Executable(); err == nil {
		localeFile := filepath.Join(filepath.Dir(exePath), "lang", locale+".yaml")
		if data, err := os.ReadFile(localeFile); err == nil {
			return data, nil
		}
	}

	data, err := bundledLocales.ReadFile("lang/" + locale + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read locale file for %s: %w", locale, err)
	}
	return data, nil
}

// T translates key with the global locale.
// Usage: T("greeting", "John") => "Hello, John!"
func T(key string, params ...interface{}) string {
	return globalLocale.T(key, params...)
}

// T translates key, returning the key itself when it has no translation.
func (l *Locale) T(key string, params ...interface{}) string {
	if l == nil {
		return key
	}

	translation, ok := l.translations[key]
	if !ok {
		return key
	}

	if len(params) > 0 {
		return fmt.Sprintf(translation, params...)
	}

	return translation
}

// Code returns the locale code, e.g. "en_US".
func (l *Locale) Code() string {
	if l == nil {
		return "en_US"
	}
	return l.locale
}

// GetLocale returns the current locale code (e.g., "en_US", "de_DE")
func GetLocale() string {
	return globalLocale.Code()
}
