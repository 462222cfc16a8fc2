package auth

// ScopeAdmin grants catalog management, voids and reconciliation.
const ScopeAdmin = "admin"
