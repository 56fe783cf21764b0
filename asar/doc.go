// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

// Package asar reads, edits and writes Electron ASAR archives.
//
// An archive is a size pickle, a header pickle holding the JSON directory
// tree, and the data region with packed file contents. Parsed archives are
// immutable: accessors return copies and edits return a new Archive.
//
// # Reading
//
// 	a, err := asar.ReadFile("resources/app.asar")
// 	if err != nil {
// 	    return err
// 	}
// 	for _, e := range a.Entries() {
// 	    // e.Path, e.Kind, e.Offset, e.Size
// 	}
// 	script, err := a.Content(".vite/build/main.js")
//
// Entries can be selected with ordered rules from github.com/woozymasta/pathrules:
//
// 	matches, err := a.Match([]pathrules.Rule{
// 	    {Action: pathrules.ActionInclude, Pattern: "**/main.js"},
// 	}, pathrules.MatcherOptions{DefaultAction: pathrules.ActionExclude})
//
// # Editing
//
// Replace one file:
//
// 	out, err := a.Replace(".vite/build/main.js", patched)
// 	if err != nil {
// 	    return err
// 	}
// 	err = os.WriteFile("app.asar", out.Serialize(), 0o644)
//
// Or stage several replacements and rebuild once:
//
// 	ed := asar.NewEditor(a)
// 	_ = ed.Replace("a.js", aData)
// 	_ = ed.Replace("b.js", bData)
// 	out, err := ed.Commit()
//
// Entries after a replaced range move by the size difference; all other entries
// keep their bytes. Files carrying an integrity record get it recomputed.
// Archives where several entries share a byte range are compacted on rebuild.
//
// An unmodified archive serializes back to the exact input bytes.
package asar
