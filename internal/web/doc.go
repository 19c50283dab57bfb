// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package web is the HTTP surface: the auth routes, session cookies,
// request validation and the router that puts the security gate in front
// of all of them.
package web
