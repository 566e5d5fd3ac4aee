package main

import (
	"os"

	"openstack-backup/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
