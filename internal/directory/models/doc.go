// Package models holds the raw record and directory reference types shared by
// the resolver, its cache and the directory providers.
package models
