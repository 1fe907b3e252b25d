// Package routes is the single source of the public URL layout.
package routes

import "path"

const (
	apiVersion = "v0"
	apiRoot    = "/api"
)

func Version() string { return apiVersion }

// Base is the versioned prefix, /api/v0.
func Base() string { return path.Join(apiRoot, apiVersion) }

func Workflows() string { return path.Join(Base(), "workflows") }

func Integration() string { return path.Join(Base(), "integration") }

// Authorize starts an OAuth popup flow and carries its own rate budget.
func Authorize() string { return path.Join(Integration(), "authorize") }

func HealthVersioned() string { return path.Join(Base(), "health") }
