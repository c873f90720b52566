package admission

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ==================== Extension Check ====================

// ExtensionCheck verifies the file extension is one of the allowed set.
type ExtensionCheck struct {
	allowed map[string]bool
}

// NewExtensionCheck creates an extension check. Extensions include the
// leading dot and are matched case-insensitively.
func NewExtensionCheck(extensions ...string) *ExtensionCheck {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &ExtensionCheck{allowed: allowed}
}

func (c *ExtensionCheck) Name() string            { return "file_extension" }
func (c *ExtensionCheck) Severity() CheckSeverity { return SeverityCritical }

func (c *ExtensionCheck) Evaluate(sub *Submission) (*CheckResult, error) {
	ext := strings.ToLower(filepath.Ext(sub.Path))
	if ext == "" {
		return &CheckResult{
			Name:     c.Name(),
			Status:   CheckFailed,
			Severity: c.Severity(),
			Message:  fmt.Sprintf("File %q has no extension", sub.Path),
		}, nil
	}
	if !c.allowed[ext] {
		return &CheckResult{
			Name:     c.Name(),
			Status:   CheckFailed,
			Severity: c.Severity(),
			Message:  fmt.Sprintf("Extension %s is not accepted", ext),
		}, nil
	}
	return &CheckResult{
		Name:     c.Name(),
		Status:   CheckPassed,
		Severity: c.Severity(),
		Message:  fmt.Sprintf("Extension %s accepted", ext),
	}, nil
}

// ==================== Size Check ====================

// SizeCheck rejects empty files and files above a byte limit.
type SizeCheck struct {
	maxBytes int64
}

// NewSizeCheck creates a size check with the given limit. A limit of 0
// disables the upper bound.
func NewSizeCheck(maxBytes int64) *SizeCheck {
	return &SizeCheck{maxBytes: maxBytes}
}

func (c *SizeCheck) Name() string            { return "file_size" }
func (c *SizeCheck) Severity() CheckSeverity { return SeverityCritical }

func (c *SizeCheck) Evaluate(sub *Submission) (*CheckResult, error) {
	size := int64(len(sub.Content))
	if size == 0 {
		return &CheckResult{
			Name:     c.Name(),
			Status:   CheckFailed,
			Severity: c.Severity(),
			Message:  "File is empty",
		}, nil
	}
	if c.maxBytes > 0 && size > c.maxBytes {
		return &CheckResult{
			Name:     c.Name(),
			Status:   CheckFailed,
			Severity: c.Severity(),
			Message:  fmt.Sprintf("File is %d bytes, limit is %d", size, c.maxBytes),
		}, nil
	}
	return &CheckResult{
		Name:     c.Name(),
		Status:   CheckPassed,
		Severity: c.Severity(),
		Message:  fmt.Sprintf("File is %d bytes", size),
	}, nil
}

// ==================== Encoding Check ====================

// EncodingCheck verifies the content is valid UTF-8 text without NUL bytes.
type EncodingCheck struct{}

func NewEncodingCheck() *EncodingCheck { return &EncodingCheck{} }

func (c *EncodingCheck) Name() string            { return "text_encoding" }
func (c *EncodingCheck) Severity() CheckSeverity { return SeverityCritical }

func (c *EncodingCheck) Evaluate(sub *Submission) (*CheckResult, error) {
	if !utf8.Valid(sub.Content) {
		return &CheckResult{
			Name:     c.Name(),
			Status:   CheckFailed,
			Severity: c.Severity(),
			Message:  "Content is not valid UTF-8",
		}, nil
	}
	for _, b := range sub.Content {
		if b == 0 {
			return &CheckResult{
				Name:     c.Name(),
				Status:   CheckFailed,
				Severity: c.Severity(),
				Message:  "Content contains NUL bytes, likely binary",
			}, nil
		}
	}
	return &CheckResult{
		Name:     c.Name(),
		Status:   CheckPassed,
		Severity: c.Severity(),
		Message:  "Content is valid UTF-8 text",
	}, nil
}

// ==================== Content Check ====================

// ContentCheck rejects submissions that are only whitespace.
type ContentCheck struct{}

func NewContentCheck() *ContentCheck { return &ContentCheck{} }

func (c *ContentCheck) Name() string            { return "content_present" }
func (c *ContentCheck) Severity() CheckSeverity { return SeverityCritical }

func (c *ContentCheck) Evaluate(sub *Submission) (*CheckResult, error) {
	if strings.TrimSpace(string(sub.Content)) == "" {
		return &CheckResult{
			Name:     c.Name(),
			Status:   CheckFailed,
			Severity: c.Severity(),
			Message:  "Content is blank",
		}, nil
	}
	return &CheckResult{
		Name:     c.Name(),
		Status:   CheckPassed,
		Severity: c.Severity(),
		Message:  "Content present",
	}, nil
}

// ==================== Solidity Check ====================

// SolidityCheck warns when the content shows no Solidity markers. It is
// advisory: plain-text notes about a contract are still ingestible.
type SolidityCheck struct{}

func NewSolidityCheck() *SolidityCheck { return &SolidityCheck{} }

func (c *SolidityCheck) Name() string            { return "solidity_markers" }
func (c *SolidityCheck) Severity() CheckSeverity { return SeverityAdvisory }

var solidityMarkers = []string{
	"pragma solidity",
	"contract ",
	"interface ",
	"library ",
	"abstract contract ",
}

func (c *SolidityCheck) Evaluate(sub *Submission) (*CheckResult, error) {
	text := string(sub.Content)
	for _, marker := range solidityMarkers {
		if strings.Contains(text, marker) {
			return &CheckResult{
				Name:     c.Name(),
				Status:   CheckPassed,
				Severity: c.Severity(),
				Message:  fmt.Sprintf("Found Solidity marker %q", strings.TrimSpace(marker)),
			}, nil
		}
	}
	return &CheckResult{
		Name:     c.Name(),
		Status:   CheckWarning,
		Severity: c.Severity(),
		Message:  "No Solidity markers found, indexing as plain text",
	}, nil
}

// ==================== Default Pipeline ====================

// DefaultExtensions are the file types accepted for ingestion.
var DefaultExtensions = []string{".sol", ".txt", ".md"}

// DefaultPipeline builds the standard admission pipeline: extension,
// size, encoding and content checks are critical, the Solidity marker
// check is advisory.
func DefaultPipeline(maxBytes int64) *Pipeline {
	return NewPipeline(
		NewExtensionCheck(DefaultExtensions...),
		NewSizeCheck(maxBytes),
		NewEncodingCheck(),
		NewContentCheck(),
		NewSolidityCheck(),
	)
}
