package main

import (
	"fmt"
	"io"

	"bandsched/backend/internal/client"
)

// cliNavigator maps surfaces to commands. Navigating to the login surface
// tells the user how to sign in again.
type cliNavigator struct {
	location string
	w        io.Writer
}

func (n *cliNavigator) Location() string { return n.location }

func (n *cliNavigator) Navigate(to string) {
	n.location = to
	if to == client.LoginPath {
		fmt.Fprintln(n.w, "Your session has ended. Run `bandsched login` to sign in again.")
	}
}
