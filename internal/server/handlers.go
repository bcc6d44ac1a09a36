package server

import (
	"context"
	"encoding/json"
	"fmt"

	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
)

// textDocumentSyncIncremental asks clients for ranged content changes.
const textDocumentSyncIncremental = 2

func (s *Server) initialize() initializeResult {
	var result initializeResult
	result.Capabilities.TextDocumentSync = textDocumentSyncIncremental
	result.Capabilities.CodeLensProvider.ResolveProvider = true
	result.Capabilities.ExecuteCommandProvider.Commands = []string{ToggleCommand}
	result.ServerInfo = map[string]string{"name": "typelens", "version": s.version}
	return result
}

func invalidParams(err error) *responseError {
	return &responseError{Code: codeInvalidParams, Message: err.Error()}
}

func (s *Server) codeLens(ctx context.Context, raw json.RawMessage) (any, *responseError) {
	var params codeLensParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err)
	}

	lenses := []codeLens{}
	doc, ok := s.docs.Document(params.TextDocument.URI)
	if !ok {
		return lenses, nil
	}

	annotations, err := s.provider.ProvideAnnotations(ctx, doc)
	if err != nil {
		if lenserrors.HasCode(err, lenserrors.Cancelled) {
			return nil, &responseError{Code: codeRequestCancelled, Message: err.Error()}
		}
		s.logger.Warn("Failed to provide lenses",
			"uri", doc.URI,
			"error", err.Error(),
		)
		return lenses, nil
	}

	for _, a := range annotations {
		data, err := json.Marshal(newLensData(a))
		if err != nil {
			return nil, &responseError{Code: codeInternalError, Message: err.Error()}
		}
		lenses = append(lenses, codeLens{Range: a.Range(), Data: data})
	}
	return lenses, nil
}

func (s *Server) resolveCodeLens(ctx context.Context, raw json.RawMessage) (any, *responseError) {
	var unresolved codeLens
	if err := json.Unmarshal(raw, &unresolved); err != nil {
		return nil, invalidParams(err)
	}
	var data lensData
	if err := json.Unmarshal(unresolved.Data, &data); err != nil {
		return nil, invalidParams(fmt.Errorf("code lens carries no annotation: %w", err))
	}

	a := data.annotation()
	result, err := s.provider.ResolveAnnotation(ctx, a)
	if err != nil {
		if lenserrors.HasCode(err, lenserrors.Cancelled) {
			if ctx.Err() != nil {
				return nil, &responseError{Code: codeRequestCancelled, Message: err.Error()}
			}
			return nil, &responseError{Code: codeContentModified, Message: err.Error()}
		}
		s.logger.Warn("Failed to resolve lens",
			"uri", a.URI,
			"symbol", a.Name,
			"error", err.Error(),
		)
		return unresolved, nil
	}

	return codeLens{
		Range:   result.Range,
		Command: commandFor(a, result),
		Data:    unresolved.Data,
	}, nil
}

// commandFor builds the clickable part of a resolved lens. Blackboxed
// lenses only carry a title.
func commandFor(a lens.Annotation, result *lens.LabelResult) *command {
	cmd := &command{Title: result.Text, Command: result.Action.Command()}
	switch result.Action {
	case lens.ActionShowReferences:
		locs := result.Locations
		if locs == nil {
			locs = []lens.Location{}
		}
		cmd.Arguments = []any{a.URI, a.Anchor.Start, locs}
	case lens.ActionFindReferences:
		cmd.Arguments = []any{a.URI, a.Anchor.Start}
	}
	return cmd
}

func (s *Server) executeCommand(_ context.Context, raw json.RawMessage) (any, *responseError) {
	var params executeCommandParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err)
	}

	switch params.Command {
	case ToggleCommand:
		enabled := s.provider.Toggle()
		s.logger.Info("Toggled lenses", "enabled", enabled)
		s.refreshLenses()
		return enabled, nil
	}
	return nil, invalidParams(fmt.Errorf("unknown command: %s", params.Command))
}

func (s *Server) didOpen(raw json.RawMessage) error {
	var params didOpenParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}
	item := params.TextDocument
	s.docs.Open(item.URI, item.LanguageID, item.Version, item.Text)
	s.logger.Debug("Document opened", "uri", item.URI, "languageId", item.LanguageID)
	return nil
}

func (s *Server) didChange(raw json.RawMessage) error {
	var params didChangeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}
	if _, ok := s.docs.Change(params.TextDocument.URI, params.TextDocument.Version, params.ContentChanges); !ok {
		return fmt.Errorf("change for unopened document %s", params.TextDocument.URI)
	}
	return nil
}

func (s *Server) didClose(raw json.RawMessage) error {
	var params didCloseParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI

	doc, ok := s.docs.Close(uri)
	s.provider.DocumentClosed(uri)

	s.activeMu.Lock()
	if s.active == uri {
		s.active = ""
	}
	s.activeMu.Unlock()

	if ok && s.closer != nil {
		return s.closer.CloseDocument(uri, doc.LanguageID)
	}
	return nil
}

func (s *Server) cancelRequest(raw json.RawMessage) error {
	var params cancelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}

	s.inflightMu.Lock()
	cancel, ok := s.inflight[requestKey(params.ID)]
	s.inflightMu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// didChangeConfiguration accepts either {"typelens": {...}} or the flat
// lens settings.
func (s *Server) didChangeConfiguration(raw json.RawMessage) error {
	var params didChangeConfigurationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}
	if len(params.Settings) == 0 || string(params.Settings) == "null" {
		return nil
	}

	var settings map[string]interface{}
	if err := json.Unmarshal(params.Settings, &settings); err != nil {
		return fmt.Errorf("settings are not an object: %w", err)
	}
	if section, ok := settings["typelens"].(map[string]interface{}); ok {
		settings = section
	}

	s.settings.Apply(settings)
	return nil
}

func (s *Server) didChangeActiveEditor(raw json.RawMessage) error {
	var params activeEditorParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}

	s.activeMu.Lock()
	s.active = params.URI
	s.activeMu.Unlock()

	if params.URI != "" {
		s.provider.DocumentActivated(params.URI)
	}
	return nil
}
