package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	app_info "github.com/robgonnella/hashwatch/internal/app-info"
	"github.com/robgonnella/hashwatch/internal/scripts/bump-version/version"
)

func main() {
	args := os.Args[1:]
	if len(args) != 1 {
		log.Fatal(errors.New("must provide version as argument"))
	}

	versionStr := args[0]
	outFile := "internal/app-info/info.go"

	git := version.NewGit("")
	generator := version.NewTemplateGenerator(outFile)

	execData := version.BumpData{
		Name:    app_info.NAME,
		Version: versionStr,
		OutFile: outFile,
	}

	if err := version.Bump(execData, generator, git); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Successfully bumped version to %s\n", versionStr)

	fmt.Println("To deploy run: \"git push <repo> <branch> --tags\"")
}
