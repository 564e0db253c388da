package extract

import (
	"path"
	"strings"

	"github.com/cimcp/cimcp/internal/symbols"
)

// resolved is a resolution outcome: a target id plus its locality
// annotation.
type resolved struct {
	id         string
	resolution symbols.Resolution
}

type resolver struct {
	filePath       string
	localByName    map[string]string
	importByName   map[string]symbols.Import
	packageForFile func(path string) string
}

// resolve maps an identifier to a target symbol id. Local names win over
// imports; unresolvable identifiers are dropped.
func (r *resolver) resolve(ident string) (resolved, bool) {
	if id, ok := r.localByName[ident]; ok {
		return resolved{id: id, resolution: symbols.ResolutionLocal}, true
	}
	if im, ok := r.importByName[ident]; ok {
		return r.resolveImport(im)
	}
	return resolved{}, false
}

// resolveImport synthesizes a target id for an imported name: the import
// source is lexically joined to the current file's directory, cleaned, and
// the imported name at byte 0 becomes the target.
func (r *resolver) resolveImport(im symbols.Import) (resolved, bool) {
	targetPath := ResolvePath(r.filePath, im.Source)
	id := symbols.StableID(targetPath, im.Name, 0, true)
	return resolved{
		id:         id,
		resolution: r.classify(targetPath, true),
	}, true
}

// classify computes the resolution annotation from the source and target
// file paths and their packages.
func (r *resolver) classify(targetPath string, viaImport bool) symbols.Resolution {
	if targetPath == r.filePath {
		return symbols.ResolutionLocal
	}
	if r.packageForFile == nil {
		if viaImport {
			return symbols.ResolutionImport
		}
		return symbols.ResolutionUnknown
	}
	srcPkg := r.packageForFile(r.filePath)
	dstPkg := r.packageForFile(targetPath)
	switch {
	case srcPkg == "" || dstPkg == "":
		if viaImport {
			return symbols.ResolutionImport
		}
		return symbols.ResolutionUnknown
	case srcPkg == dstPkg && viaImport:
		return symbols.ResolutionPackageImport
	case srcPkg != dstPkg && viaImport:
		return symbols.ResolutionCrossPackageImport
	case srcPkg == dstPkg:
		return symbols.ResolutionPackage
	default:
		return symbols.ResolutionCrossPackage
	}
}

// ResolvePath lexically joins an import source to the importing file's
// directory and cleans the result. Sources without an extension get a .ts
// suffix; "." and ".." segments collapse.
func ResolvePath(currentFile, source string) string {
	joined := path.Join(path.Dir(currentFile), source)
	joined = path.Clean(joined)
	if path.Ext(joined) == "" {
		joined += ".ts"
	}
	return strings.TrimPrefix(joined, "./")
}
