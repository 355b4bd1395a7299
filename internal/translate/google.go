package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gtranslate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// googleAPI adapts the Cloud Translation v2 client to the API interface.
type googleAPI struct {
	client *gtranslate.Client
}

// NewGoogleAPI builds the provider client. credentialsFile may be empty, in
// which case application default credentials apply.
func NewGoogleAPI(ctx context.Context, credentialsFile string) (API, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gtranslate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create translation client: %w", err)
	}
	return &googleAPI{client: client}, nil
}

func (g *googleAPI) Detect(ctx context.Context, text string) (language.Tag, error) {
	detections, err := g.client.DetectLanguage(ctx, []string{text})
	if err != nil {
		return language.Und, classifyGoogle(err)
	}
	if len(detections) == 0 || len(detections[0]) == 0 {
		return language.Und, &Error{Kind: KindInvalidInput, Err: errors.New("no language detected")}
	}
	return detections[0][0].Language, nil
}

func (g *googleAPI) Translate(ctx context.Context, text string, target language.Tag) (string, language.Tag, error) {
	translations, err := g.client.Translate(ctx, []string{text}, target,
		&gtranslate.Options{Format: gtranslate.Text})
	if err != nil {
		return "", language.Und, classifyGoogle(err)
	}
	if len(translations) == 0 {
		return "", language.Und, &Error{Kind: KindUnavailable, Err: errors.New("empty translation response")}
	}
	return translations[0].Text, translations[0].Source, nil
}

// classifyGoogle maps provider HTTP status codes onto error kinds.
func classifyGoogle(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return &Error{Kind: KindUnavailable, Err: err}
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return &Error{Kind: KindThrottled, Err: err}
	case apiErr.Code >= http.StatusInternalServerError:
		return &Error{Kind: KindUnavailable, Err: err}
	default:
		return &Error{Kind: KindInvalidInput, Err: err}
	}
}
