package events

// Event payloads

func NotificationPayload(level, message string) map[string]interface{} {
	return map[string]interface{}{
		"level":   level,
		"message": message,
	}
}

func StepChangedPayload(step int, name string) map[string]interface{} {
	return map[string]interface{}{
		"step": step,
		"name": name,
	}
}

func UploadProgressPayload(target, uid string, percent int) map[string]interface{} {
	return map[string]interface{}{
		"target":  target,
		"uid":     uid,
		"percent": percent,
	}
}

func SceneUpdatedPayload(sceneID, status, imageURL, errMsg string) map[string]interface{} {
	payload := map[string]interface{}{
		"scene_id": sceneID,
		"status":   status,
	}
	if imageURL != "" {
		payload["image_url"] = imageURL
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	return payload
}

func BatchProgressPayload(sceneID string, current, total int) map[string]interface{} {
	return map[string]interface{}{
		"scene_id": sceneID,
		"current":  current,
		"total":    total,
	}
}

func BatchCompletedPayload(generated, failed, total int) map[string]interface{} {
	return map[string]interface{}{
		"generated": generated,
		"failed":    failed,
		"total":     total,
	}
}

func LogoChangedPayload(phase, logoURL string) map[string]interface{} {
	return map[string]interface{}{
		"phase":    phase,
		"logo_url": logoURL,
	}
}

func VideoProgressPayload(videoID, status string, progress int) map[string]interface{} {
	return map[string]interface{}{
		"video_id": videoID,
		"status":   status,
		"progress": progress,
	}
}

func VideoCompletedPayload(videoID, videoURL string) map[string]interface{} {
	return map[string]interface{}{
		"video_id":  videoID,
		"status":    "completed",
		"progress":  100,
		"video_url": videoURL,
	}
}

func VideoFailedPayload(videoID, errMsg, errCode string) map[string]interface{} {
	return map[string]interface{}{
		"video_id":   videoID,
		"status":     "failed",
		"error":      errMsg,
		"error_code": errCode,
	}
}

func CatalogLoadedPayload(avatars, voices int) map[string]interface{} {
	return map[string]interface{}{
		"avatars": avatars,
		"voices":  voices,
	}
}
