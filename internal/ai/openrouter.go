package ai

import "time"

// NewOpenRouterProvider is NewOpenAIProvider with OpenRouter's base URL and
// attribution headers.
func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string, timeout time.Duration, opts Options) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	headers := map[string]string{}
	if siteURL != "" {
		headers["HTTP-Referer"] = siteURL
	}
	if appName != "" {
		headers["X-Title"] = appName
	}
	return NewOpenAIProvider(OpenAIConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Headers: headers,
		Timeout: timeout,
		Opts:    opts,
	})
}
