package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Candidate locations for the folder-convention prompt, searched in order:
// each folder name directly under the watched root, each file name inside a
// found folder, then the same file names directly in the root.
var (
	promptFolderNames = []string{"prompt", "prompts", "config"}
	promptFileNames   = []string{"prompt.txt", "prompt.md"}
)

// Resolution is the outcome of one configuration lookup at analysis time.
type Resolution struct {
	Prompt      string
	PromptFound bool
	Model       string
}

// Resolver resolves the active prompt and model from the layered
// configuration: central override first, folder convention second, absent
// last. Absence of a prompt means absence of analysis, never a substituted
// default.
type Resolver struct {
	config       ConfigStore
	drive        Drive
	rootFolderID string
	defaultModel string
}

// NewResolver creates a resolver over the given configuration store and
// watched root folder.
func NewResolver(config ConfigStore, drive Drive, rootFolderID, defaultModel string) *Resolver {
	return &Resolver{
		config:       config,
		drive:        drive,
		rootFolderID: rootFolderID,
		defaultModel: defaultModel,
	}
}

// Resolve performs one lookup. The settings record is read once; the Drive
// convention search only runs when the central override is empty.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	settings, err := r.config.Settings(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to read settings: %w", err)
	}

	res := Resolution{Model: r.defaultModel}
	if model := strings.TrimSpace(settings.Model); model != "" {
		res.Model = model
	}

	if prompt := strings.TrimSpace(settings.Prompt); prompt != "" {
		res.Prompt = settings.Prompt
		res.PromptFound = true
		return res, nil
	}

	prompt, found, err := r.conventionPrompt(ctx)
	if err != nil {
		return Resolution{}, err
	}
	res.Prompt = prompt
	res.PromptFound = found
	return res, nil
}

// conventionPrompt searches the watched root for a prompt file per the folder
// convention.
func (r *Resolver) conventionPrompt(ctx context.Context) (string, bool, error) {
	for _, folderName := range promptFolderNames {
		folderID, found, err := r.findChild(ctx, r.rootFolderID, folderName, true)
		if err != nil {
			return "", false, err
		}
		if !found {
			continue
		}
		prompt, found, err := r.promptFileIn(ctx, folderID)
		if err != nil || found {
			return prompt, found, err
		}
	}
	// Fall back to the same file names directly in the root.
	return r.promptFileIn(ctx, r.rootFolderID)
}

func (r *Resolver) promptFileIn(ctx context.Context, folderID string) (string, bool, error) {
	for _, fileName := range promptFileNames {
		fileID, found, err := r.findChild(ctx, folderID, fileName, false)
		if err != nil {
			return "", false, err
		}
		if !found {
			continue
		}
		data, err := r.drive.ReadFile(ctx, fileID)
		if err != nil {
			return "", false, fmt.Errorf("failed to read prompt file %s: %w", fileName, err)
		}
		prompt := strings.TrimSpace(string(data))
		if prompt == "" {
			slog.Warn("Prompt file is empty. Continuing search.", "file", fileName)
			continue
		}
		return prompt, true, nil
	}
	return "", false, nil
}

// findChild looks up a child by name, trying both the literal parent ID and a
// trimmed variant. Folder identifiers copied out of the platform sometimes
// carry a spurious trailing separator.
func (r *Resolver) findChild(ctx context.Context, parentID, name string, foldersOnly bool) (string, bool, error) {
	for _, id := range idVariants(parentID) {
		childID, found, err := r.drive.FindChild(ctx, id, name, foldersOnly)
		if err != nil {
			return "", false, err
		}
		if found {
			return childID, true, nil
		}
	}
	return "", false, nil
}

func idVariants(id string) []string {
	trimmed := strings.TrimRight(id, "/")
	if trimmed == id {
		return []string{id}
	}
	return []string{id, trimmed}
}
