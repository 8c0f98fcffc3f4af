// The main package for the outreach executable.
package main

import "github.com/ServanKorkmaz/mail-automation/cmd"

func main() {
	cmd.Execute()
}
