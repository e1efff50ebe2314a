package currency

import (
	"context"
	"errors"
	"fmt"

	"github.com/htkfoods/storefront/internal/localstore"
	"github.com/htkfoods/storefront/internal/models"
	"golang.org/x/text/language"
)

const DefaultLanguage = "en"

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

var languages = language.NewMatcher([]language.Tag{language.English, language.Hindi})

// Preferences persists the shopper's display currency and language in
// local storage.
type Preferences struct {
	local    localstore.Storage
	fallback string
}

func NewPreferences(local localstore.Storage, fallback string) *Preferences {
	if !IsSupported(fallback) {
		fallback = Base
	}

	return &Preferences{local: local, fallback: fallback}
}

func (p *Preferences) Get(ctx context.Context) (models.Preferences, error) {
	prefs := models.Preferences{Currency: p.fallback, Language: DefaultLanguage}

	code, ok, err := p.local.Get(ctx, localstore.KeyCurrency)
	if err != nil {
		return prefs, fmt.Errorf("failed to read currency preference: %w", err)
	}
	if ok {
		if c, supported := Lookup(code); supported {
			prefs.Currency = c.Code
		}
	}

	lang, ok, err := p.local.Get(ctx, localstore.KeyLanguage)
	if err != nil {
		return prefs, fmt.Errorf("failed to read language preference: %w", err)
	}
	if ok && lang != "" {
		prefs.Language = lang
	}

	return prefs, nil
}

// CurrencyChosen reports whether a currency has been stored, either picked
// by the shopper or detected earlier.
func (p *Preferences) CurrencyChosen(ctx context.Context) (bool, error) {
	_, ok, err := p.local.Get(ctx, localstore.KeyCurrency)
	return ok, err
}

func (p *Preferences) SetCurrency(ctx context.Context, code string) error {
	c, ok := Lookup(code)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}

	return p.local.Set(ctx, localstore.KeyCurrency, c.Code)
}

func (p *Preferences) SetLanguage(ctx context.Context, lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	matched, _, confidence := languages.Match(tag)
	if confidence < language.High {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	base, _ := matched.Base()
	return p.local.Set(ctx, localstore.KeyLanguage, base.String())
}
