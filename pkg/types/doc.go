// Package types provides shared type definitions for docsync.
//
// This package defines the domain types that flow through the sync pipeline:
// code elements, parse results, documentation decisions, index records and
// run summaries.
//
// # Code Elements
//
// CodeElement is a documentable unit (module, class, function or method)
// extracted from source by a language adapter and given a stable identity by
// the model builder:
//
//	el := &types.CodeElement{
//	    ID:            "5f0c...",
//	    Kind:          types.KindMethod,
//	    Name:          "Parse",
//	    QualifiedName: "parser.Parser.Parse",
//	    Language:      types.LangGo,
//	}
//
// Elements form a forest: each file contributes one module root, and every
// other element references its enclosing element through ParentID.
//
// # Decisions and Records
//
// DocDecision is the reconciler's verdict for one element (generate, refresh,
// preserve, extract_only, delete or failed). IndexRecord is what ends up in the
// vector store, keyed by (ElementID, VersionTag):
//
//	rec := &types.IndexRecord{
//	    ElementID:     el.ID,
//	    VersionTag:    "v1",
//	    Text:          doc,
//	    HierarchyPath: []string{"parser", "parser.Parser"},
//	}
//	rec.ComputeRecordHash()
//
// RecordHash covers text and metadata but not timestamps, so an unchanged
// element produces the same hash on every run and the write can be skipped.
//
// # Errors
//
// ParseError is recoverable and only skips one file. ModelIntegrityError is
// fatal. GenerationError and StoreError are isolated per element and carry a
// Retryable flag.
package types
