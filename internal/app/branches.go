package app

import "github.com/halfxyz/hop/internal/release"

// ProdBranch is the single, permanent production trunk (spec.md §6).
const ProdBranch = "ho-prod"

func releaseBranch(v release.Version) string { return "ho-release/" + v.String() }
func patchBranch(id string) string           { return "ho-patch/" + id }
func validateBranch(id string) string        { return "ho-validate/" + id }
