// Package strata is the composition root of the strata content-tree builder.
//
// A build reads a declarative document (YAML, or JSON with comments) whose
// content sequence describes a tree of nodes, and materializes it into a
// content repository: every node becomes an item of a content type, placed
// below its parent and published in each active language.
//
// Documents can embed function invocations, expanded before use:
//
//	content:
//	  - class: folder
//	    name: Media
//	    parentNode: /site/assets
//	  - function: include
//	    file: gallery.yaml
//	  - class: article
//	    title: Latest
//	    related:
//	      function: content/locate
//	      path: /site/news
//
// Builds are not transactional. A failed build reports the execution path of
// the failing value and the undo line listing every location it created,
// newest first, which Remove accepts as is.
//
// Usage:
//
//	eng, err := strata.New("./site",
//		strata.WithLanguages("eng-GB", "ger-DE"),
//		strata.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	report, err := eng.ApplyFile(ctx, "documents/landing.yaml")
//	if err != nil {
//		fmt.Println("failed at", report.Path, "undo with", report.Undo())
//	}
package strata
