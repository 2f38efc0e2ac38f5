// Package provision obtains a meeting room and the access tokens two
// participants need to join it.
//
// A Provisioner creates the room through the room service REST API and mints
// one HS256 token per identity from the same room id:
//
//	p, err := provision.New(provision.Config{
//		Endpoint:  "https://api.videosdk.live/v2",
//		APIKey:    apiKey,
//		Secret:    secret,
//		AuthToken: systemToken,
//	})
//	if err != nil {
//		return err
//	}
//	creds, err := p.Provision(ctx)
//
// Missing inputs fail New with a *config.ConfigError before any request is
// made. Room service failures surface as *transport.Error.
package provision
