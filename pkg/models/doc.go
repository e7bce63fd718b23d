// Package models holds the entities shared by storage and the domain services.
package models
