package main

import (
	"context"
	"flag"
	"fmt"

	letsconfide "github.com/wbibile/LetsConfide"
	"github.com/wbibile/LetsConfide/tpm"
)

func runDecrypt(args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	path := fs.String("config", "", "path to the secrets YAML file")
	name := fs.String("name", "", "secret name to decrypt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" || *name == "" {
		return fmt.Errorf("decrypt requires -config and -name")
	}

	ctx := context.Background()
	mgr, err := letsconfide.Parse(ctx, *path, tpm.DefaultDeviceFactory)
	if err != nil {
		return err
	}

	sess, err := mgr.StartDataAccessSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	value, err := sess.Decrypt(*name)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}
