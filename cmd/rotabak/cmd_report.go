package main

import (
	"os"

	"rotabak/internal/keys"
	"rotabak/internal/report"

	"filippo.io/age"
)

func showReport(file, privateKeyPath string) error {
	var identity age.Identity
	if privateKeyPath != "" {
		id, err := keys.LoadIdentity(privateKeyPath)
		if err != nil {
			return err
		}
		identity = id
	}

	r, err := report.Open(file, identity)
	if err != nil {
		return err
	}
	report.Summarize(os.Stdout, r)
	return nil
}
