package workload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"workload-orchestrator/internal/apperrors"

	"gopkg.in/yaml.v3"
)

// ManifestResourceName and ManifestResourceType name the single template
// resource every catalogue manifest declares.
const (
	ManifestResourceName = "WorkloadSSM"
	ManifestResourceType = "AWS::Cloudformation"
)

type manifestResource struct {
	Type        string `yaml:"Type"`
	TemplateURL string `yaml:"TemplateURL"`
}

type manifest struct {
	Resources []map[string]manifestResource `yaml:"Resources"`
}

// CreateOrUpdateCatalogue uploads the manifest artifact under a fresh version
// token, then creates a catalogue item, or a new version of
// req.ExistingCatalogueID when it is set.
func (s *Service) CreateOrUpdateCatalogue(ctx context.Context, req *CatalogueRequest) (Response, error) {
	if err := validateCatalogueRequest(req); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, apperrors.Internal("catalogue.upload", fmt.Errorf("object store not configured"))
	}

	version := s.newVersion()
	key := ArtifactKey(version, req.Name)
	logger := slog.With("catalogueName", req.Name, "version", version)

	locator, err := s.store.Put(ctx, req.Bucket, req.ManifestPath, key)
	if err != nil {
		logger.Error("Manifest upload failed", "error", err)
		return nil, err
	}

	body, err := ManifestBody(locator)
	if err != nil {
		return nil, apperrors.Internal("catalogue.manifest", err)
	}

	catalogue := &Catalogue{
		Name:         req.Name,
		Version:      version,
		ManifestBody: body,
		Description:  req.Description,
	}

	var resp Response
	if req.ExistingCatalogueID != nil {
		resp, err = s.api.CreateCatalogueVersion(ctx, *req.ExistingCatalogueID, catalogue)
	} else {
		resp, err = s.api.CreateCatalogueItem(ctx, catalogue)
	}
	if err != nil {
		logger.Error("Catalogue publish failed", "error", err)
		return nil, err
	}

	logger.Info("Catalogue published", "locator", locator, "newItem", req.ExistingCatalogueID == nil)
	return resp, nil
}

// ArtifactKey is the object key a manifest is stored under.
func ArtifactKey(version, name string) string {
	return fmt.Sprintf("%s-%s.yaml", version, name)
}

// ManifestBody renders the catalogue manifest pointing at the uploaded template.
func ManifestBody(templateURL string) (string, error) {
	m := manifest{
		Resources: []map[string]manifestResource{
			{ManifestResourceName: {Type: ManifestResourceType, TemplateURL: templateURL}},
		},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ResolveManifestPath confines a caller-supplied manifest path to root. The
// path must be relative, must name a regular file, and must stay inside root
// once symlinks are followed. An empty root disables manifest uploads.
func ResolveManifestPath(root, manifestPath string) (string, error) {
	if manifestPath == "" {
		return "", apperrors.MissingRequiredInput("manifest_path")
	}
	if root == "" {
		return "", apperrors.Validation("manifest_path", "manifest uploads are disabled: no manifest directory configured")
	}
	if filepath.IsAbs(manifestPath) {
		return "", apperrors.Validation("manifest_path", "manifest_path must be relative to the manifest directory")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", apperrors.Internal("catalogue.manifest", err)
	}
	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", apperrors.Internal("catalogue.manifest", fmt.Errorf("manifest directory: %w", err))
	}

	full := filepath.Join(rootReal, manifestPath)
	if !within(rootReal, full) {
		return "", apperrors.Validation("manifest_path", "manifest_path must stay inside the manifest directory")
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", apperrors.Validation("manifest_path", "manifest not found")
	}
	if !within(rootReal, resolved) {
		return "", apperrors.Validation("manifest_path", "manifest_path must stay inside the manifest directory")
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", apperrors.Validation("manifest_path", "manifest_path must name a regular file")
	}
	return resolved, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}

func validateCatalogueRequest(req *CatalogueRequest) error {
	if req == nil {
		return apperrors.Validation("catalogue", "catalogue request is required")
	}
	if req.Bucket == "" {
		return apperrors.MissingRequiredInput("bucket")
	}
	if req.Name == "" {
		return apperrors.MissingRequiredInput("catalogue_name")
	}
	if req.ManifestPath == "" {
		return apperrors.MissingRequiredInput("manifest_path")
	}
	if strings.ContainsAny(req.Name, "/\\") || path.Clean(req.Name) != req.Name {
		return apperrors.Validation("catalogue_name", "catalogue_name must not contain path separators")
	}
	return nil
}
