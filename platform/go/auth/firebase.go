package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// InitFirebase initializes the Firebase app and returns an Auth client.
// credentialsFile is optional; when empty, application default credentials
// are used.
func InitFirebase(ctx context.Context, credentialsFile string) (*firebaseauth.Client, error) {
	var app *firebase.App
	var err error

	if credentialsFile != "" {
		app, err = firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	} else {
		app, err = firebase.NewApp(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase auth: %w", err)
	}
	return client, nil
}

// FirebaseVerify adapts a Firebase Auth client to the middleware VerifyFunc.
func FirebaseVerify(client *firebaseauth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		verified, err := client.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}

		claims := make(map[string]interface{}, len(verified.Claims)+1)
		for k, v := range verified.Claims {
			claims[k] = v
		}
		claims["uid"] = verified.UID
		return claims, nil
	}
}
