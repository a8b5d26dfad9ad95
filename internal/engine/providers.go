package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"contentforge/engine/internal/config"
	"contentforge/engine/internal/errinfo"
	"contentforge/engine/internal/logging"
	"contentforge/engine/internal/settings"
	"contentforge/engine/internal/toolgen"
)

var providerDisplayNames = map[string]string{
	settings.ProviderOpenAI:    "OpenAI",
	settings.ProviderAnthropic: "Anthropic",
	settings.ProviderGoogle:    "Google",
	settings.ProviderMistral:   "Mistral",
}

func (e *Engine) ProvidersGetStatus(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	selected, err := e.config.SelectedProvider()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	status := []map[string]any{}
	for _, id := range settings.KnownProviders {
		key, err := e.config.ProviderKey(id)
		if err != nil {
			return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
		}
		model, err := e.config.Model(id)
		if err != nil {
			return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
		}
		validation, err := e.config.ValidationStatus(id)
		if err != nil {
			return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
		}
		status = append(status, map[string]any{
			"provider_id":  id,
			"display_name": providerDisplayNames[id],
			"configured":   strings.TrimSpace(key) != "",
			"model":        model,
			"validation":   validation,
			"selected":     id == selected,
		})
	}
	return map[string]any{"providers": status, "selected_provider": selected}, nil
}

func (e *Engine) ProvidersSetApiKey(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProviderID string `json:"provider_id"`
		APIKey     string `json:"api_key"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhaseSettings); errInfo != nil {
		return nil, errInfo
	}
	e.logger.Debug("providers.set_api_key", "provider_id", req.ProviderID, "api_key", logging.RedactValue(req.APIKey))
	if err := e.config.SetProviderKey(req.ProviderID, req.APIKey); err != nil {
		return nil, settingsWriteError(err)
	}
	return map[string]any{}, nil
}

// ProvidersValidate checks the stored key against the provider and caches the
// outcome. An auth failure is reported as a result, not an error.
func (e *Engine) ProvidersValidate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProviderID string `json:"provider_id"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhaseSettings); errInfo != nil {
		return nil, errInfo
	}
	provider, err := e.providers.Get(req.ProviderID)
	if err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, err.Error())
	}
	key, err := e.config.ProviderKey(req.ProviderID)
	if err != nil {
		return nil, settingsError(err)
	}
	if strings.TrimSpace(key) == "" {
		return nil, errinfo.ProviderNotConfigured(errinfo.PhaseSettings)
	}
	model, err := e.config.Model(req.ProviderID)
	if err != nil {
		return nil, settingsError(err)
	}
	e.logger.Debug("providers.validate", "provider_id", req.ProviderID, "model", model)
	validateErr := provider.ValidateKey(ctx, key, model)
	status := settings.ValidationValid
	var errInfo *errinfo.ErrorInfo
	if validateErr != nil {
		errInfo = mapLLMError(errinfo.PhaseSettings, req.ProviderID, validateErr)
		switch errInfo.ErrorCode {
		case errinfo.CodeProviderAuthFailed, errinfo.CodeValidationFailed:
			status = settings.ValidationInvalid
		default:
			// Transient failures say nothing about the key itself.
			e.logger.Warn("providers.validate_failed", "provider_id", req.ProviderID, "error", validateErr.Error())
			return nil, errInfo
		}
	}
	if err := e.config.SetValidationStatus(req.ProviderID, status); err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Info("providers.validated", "provider_id", req.ProviderID, "validation", status)
	result := map[string]any{"ok": validateErr == nil, "validation": status}
	if errInfo != nil {
		result["error"] = errInfo
	}
	return result, nil
}

// ProvidersSelect makes a provider current, optionally changing its model.
func (e *Engine) ProvidersSelect(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProviderID string `json:"provider_id"`
		Model      string `json:"model"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhaseSettings); errInfo != nil {
		return nil, errInfo
	}
	if err := e.config.SetSelectedProvider(req.ProviderID); err != nil {
		return nil, settingsWriteError(err)
	}
	if strings.TrimSpace(req.Model) != "" {
		if err := e.config.SetModel(req.ProviderID, req.Model); err != nil {
			return nil, settingsWriteError(err)
		}
	}
	e.logger.Info("providers.selected", "provider_id", req.ProviderID, "model", req.Model)
	return e.ProvidersGetStatus(ctx, nil)
}

func (e *Engine) ConfigGetTheme(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	theme, err := e.config.Theme()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	return theme, nil
}

func (e *Engine) ConfigSetTheme(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req config.Theme
	if errInfo := decodeParams(params, &req, errinfo.PhaseSettings); errInfo != nil {
		return nil, errInfo
	}
	theme, err := e.config.SetTheme(req)
	if err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	return theme, nil
}

// resolveProvider returns the selected provider with its credentials.
func (e *Engine) resolveProvider(phase string) (toolgen.Provider, toolgen.Credentials, *errinfo.ErrorInfo) {
	providerID, apiKey, model, err := e.config.Credentials()
	if err != nil {
		info := settingsError(err)
		info.Phase = phase
		return nil, toolgen.Credentials{}, info
	}
	if strings.TrimSpace(apiKey) == "" {
		info := errinfo.ProviderNotConfigured(phase)
		info.ProviderID = providerID
		return nil, toolgen.Credentials{}, info
	}
	provider, err := e.providers.Get(providerID)
	if err != nil {
		return nil, toolgen.Credentials{}, errinfo.ValidationFailed(phase, err.Error())
	}
	if model == "" {
		model = settings.DefaultModel(providerID)
	}
	return provider, toolgen.Credentials{APIKey: apiKey, Model: model}, nil
}

func settingsError(err error) *errinfo.ErrorInfo {
	if errors.Is(err, config.ErrUnknownProvider) {
		return errinfo.ValidationFailed(errinfo.PhaseSettings, err.Error())
	}
	return errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
}

func settingsWriteError(err error) *errinfo.ErrorInfo {
	if errors.Is(err, config.ErrUnknownProvider) {
		return errinfo.ValidationFailed(errinfo.PhaseSettings, err.Error())
	}
	return errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
}
