// Command hashsecret prints the bcrypt hash of a scheduler secret, suitable
// for CRON_SECRET_HASH.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/setlist-vote/internal/utils"
)

func main() {
	cost := flag.Int("cost", 12, "bcrypt cost")
	flag.Parse()

	secret := strings.Join(flag.Args(), " ")
	if secret == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			logrus.WithError(err).Fatal("read secret from stdin")
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		logrus.Fatal("usage: hashsecret [-cost N] <secret>  (or pipe it on stdin)")
	}

	hash, err := utils.HashSecret(secret, *cost)
	if err != nil {
		logrus.WithError(err).Fatal("hash secret")
	}
	fmt.Println(hash)
}
