package graph

import "context"

const defaultProfile = "me"

// UploadPicture uploads a photo to target's photos connection.
// An empty target means the token owner.
func (c *Client) UploadPicture(ctx context.Context, target string, upload *FileUpload, params Params) (Payload, error) {
	if target == "" {
		target = defaultProfile
	}
	merged := params.Clone()
	merged["source"] = upload
	return c.WriteObject(ctx, target, "photos", merged)
}

// PostWallMessage posts message, with optional attachment fields such as
// link or name, to profile's feed. An empty profile means the token owner.
func (c *Client) PostWallMessage(ctx context.Context, message string, attachment Params, profile string) (Payload, error) {
	if profile == "" {
		profile = defaultProfile
	}
	merged := attachment.Clone()
	merged["message"] = message
	return c.WriteObject(ctx, profile, "feed", merged)
}

// PostComment comments on an object.
func (c *Client) PostComment(ctx context.Context, objectID, message string) (Payload, error) {
	return c.WriteObject(ctx, objectID, "comments", Params{"message": message})
}

// Like likes an object on behalf of the token owner.
func (c *Client) Like(ctx context.Context, objectID string) (Payload, error) {
	return c.WriteObject(ctx, objectID, "likes", nil)
}

// Unlike removes the token owner's like from an object.
func (c *Client) Unlike(ctx context.Context, objectID string) (Payload, error) {
	return c.DeleteConnections(ctx, objectID, "likes", nil)
}
