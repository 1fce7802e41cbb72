// Package testutils holds helpers shared by the tests of several packages.
package testutils
