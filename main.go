package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mwirth/smtpserver/helpers"
	"github.com/mwirth/smtpserver/recipient"
	"github.com/mwirth/smtpserver/smtp"
)

// fileConfig is the on-disk shape read by -config. ServerName,
// Endpoints and MaxMessageSize map one to one onto smtp.ServerOptions;
// MaildirRoot and RecipientsFile configure the default message store
// and mailbox filter factories.
type fileConfig struct {
	ServerName     string
	Endpoints      []smtp.Endpoint
	MaxMessageSize int
	MaildirRoot    string
	RecipientsFile string
}

func main() {
	configPath := flag.String("config", "", "path to a JSON server configuration file")
	flag.Parse()

	cfg := fileConfig{
		ServerName:  "localhost",
		Endpoints:   []smtp.Endpoint{{IP: "", Port: 1234}},
		MaildirRoot: "./Maildir",
	}

	if *configPath != "" {
		if err := helpers.DecodeFile(*configPath, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, "smtpd:", err)
			os.Exit(1)
		}
	}

	recipients := &recipient.DB{}
	if cfg.RecipientsFile != "" {
		loaded, err := recipient.Load(cfg.RecipientsFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "smtpd:", err)
			os.Exit(1)
		}
		recipients = loaded
	}

	options := smtp.ServerOptions{
		ServerName:           cfg.ServerName,
		Endpoints:            cfg.Endpoints,
		MaxMessageSize:       cfg.MaxMessageSize,
		MailboxFilterFactory: smtp.SPFFilterFactory{Recipients: recipients},
		MessageStoreFactory:  smtp.MaildirStoreFactory{Root: cfg.MaildirRoot},
	}

	server := smtp.NewServer(options)

	if err := server.ListenAndServe(make(chan struct{})); err != nil {
		fmt.Fprintln(os.Stderr, "smtpd:", err)
		os.Exit(1)
	}
}
