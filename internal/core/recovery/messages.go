package recovery

import "github.com/kirillkom/media-upload-router/internal/core/domain"

type guidance struct {
	message  string
	actions  []string
	severity domain.Severity
}

// userGuidance holds the only texts that reach end users.
var userGuidance = map[string]guidance{
	"validation." + CodeFileTooLarge: {
		"The file is larger than your plan allows.",
		[]string{"Compress the file", "Reduce the image or video quality", "Upgrade your plan for larger uploads"},
		domain.SeverityMedium,
	},
	"validation." + CodeInvalidFileType: {
		"This file type is not supported.",
		[]string{"Convert the file to PDF, DOCX or TXT", "Contact support if you need this format"},
		domain.SeverityMedium,
	},
	"validation." + CodeSecurityScanFailed: {
		"The file was blocked by the security scan.",
		[]string{"Contact your administrator", "Upload a different file"},
		domain.SeverityCritical,
	},
	"validation." + CodeInvalidFileName: {
		"The file name contained unsupported characters and was adjusted.",
		[]string{"Continue with the corrected file name", "Rename the file yourself"},
		domain.SeverityLow,
	},
	"network." + CodeConnectionTimeout: {
		"The connection timed out. The upload is being retried.",
		[]string{"Wait for the automatic retry", "Check your internet connection"},
		domain.SeverityMedium,
	},
	"network." + CodeSlowConnection: {
		"Your connection is slow. The file will be uploaded in reduced quality.",
		[]string{"Continue with reduced quality", "Retry on a faster connection"},
		domain.SeverityLow,
	},
	"network." + CodeDNSResolutionFailed: {
		"The upload server could not be reached. An alternative server is used.",
		[]string{"Wait for the automatic retry", "Check your network settings"},
		domain.SeverityMedium,
	},
	"network." + CodeConnectionInterrupted: {
		"The connection was interrupted. The upload continues where it stopped.",
		[]string{"Resume the upload", "Check your internet connection"},
		domain.SeverityMedium,
	},
	"permissions." + CodeInsufficientPermissions: {
		"You do not have permission to upload here.",
		[]string{"Ask your team administrator for access"},
		domain.SeverityHigh,
	},
	"permissions." + CodeQuotaExceeded: {
		"Your storage quota is used up.",
		[]string{"Upgrade your plan", "Delete files you no longer need", "Contact billing support"},
		domain.SeverityHigh,
	},
	"permissions." + CodePipelineLocked: {
		"The project is locked in its current phase. The upload starts when it is unlocked.",
		[]string{"Wait until the project is unlocked", "Contact the project owner"},
		domain.SeverityMedium,
	},
	"permissions." + CodeCrossTenantAccessDenied: {
		"Access to this resource is not allowed.",
		[]string{"Check that you are working in the right organization", "Contact your administrator"},
		domain.SeverityCritical,
	},
	"storage." + CodeServiceUnavailable: {
		"The storage service is temporarily unavailable. The upload is retried automatically.",
		[]string{"Wait for the automatic retry", "Check the status page"},
		domain.SeverityHigh,
	},
	"storage." + CodeUploadCorrupted: {
		"The file was damaged during transfer and is uploaded again.",
		[]string{"Wait for the verified retry", "Upload the file again if the problem persists"},
		domain.SeverityMedium,
	},
	"storage." + CodeRegionUnavailable: {
		"The storage region is unavailable. Another region is used.",
		[]string{"Wait for the automatic retry"},
		domain.SeverityHigh,
	},
	"storage." + CodeWriteLockConflict: {
		"Another upload is writing to the same location. Your upload is queued.",
		[]string{"Wait for your turn in the queue"},
		domain.SeverityLow,
	},
	"storage." + CodeFileTooLarge: {
		"The file exceeds the storage limit.",
		[]string{"Compress the file", "Split the content into smaller files"},
		domain.SeverityMedium,
	},
	"storage." + CodeCatastrophicFailure: {
		"Storage is currently unavailable. Your files are kept locally and uploaded later.",
		[]string{"Keep working, uploads sync automatically", "Do not close the application until sync completes"},
		domain.SeverityCritical,
	},
	"storage." + CodeInternalServerError: {
		"Something went wrong while saving the file.",
		[]string{"Retry in 2-3 minutes", "Contact support if the problem persists"},
		domain.SeverityHigh,
	},
	"smart_router." + CodeRouterUnavailable: {
		"Automatic folder selection is unavailable. Please choose a folder.",
		[]string{"Select the target folder manually"},
		domain.SeverityMedium,
	},
	"smart_router." + CodeAIModelTimeout: {
		"Folder suggestion took too long. A simplified suggestion is used.",
		[]string{"Check the suggested folder", "Select the folder manually"},
		domain.SeverityLow,
	},
	"smart_router." + CodeContextBuildingFailed: {
		"Not all project details were available. The folder is chosen by file type.",
		[]string{"Check the suggested folder", "Select the project before uploading"},
		domain.SeverityLow,
	},
	"smart_router." + CodeLowConfidenceRouting: {
		"We are not sure which folder fits best. Please choose one.",
		[]string{"Pick one of the suggested folders", "Select a folder manually"},
		domain.SeverityLow,
	},
}

var categoryGuidance = map[domain.ErrorCategory]guidance{
	domain.CategoryValidation: {
		"The file could not be accepted.",
		[]string{"Check the file and try again"},
		domain.SeverityMedium,
	},
	domain.CategoryNetwork: {
		"A network problem interrupted the upload. It is retried automatically.",
		[]string{"Wait for the automatic retry", "Check your internet connection"},
		domain.SeverityMedium,
	},
	domain.CategoryPermissions: {
		"You are not allowed to perform this upload.",
		[]string{"Contact your administrator"},
		domain.SeverityHigh,
	},
	domain.CategoryStorage: {
		"The file could not be stored right now. It is retried automatically.",
		[]string{"Wait for the automatic retry", "Retry in 2-3 minutes"},
		domain.SeverityHigh,
	},
	domain.CategorySmartRouter: {
		"Automatic folder selection failed. Please choose a folder.",
		[]string{"Select the target folder manually"},
		domain.SeverityMedium,
	},
}

func guidanceFor(ue *domain.UploadError) guidance {
	if g, ok := userGuidance[ue.Key()]; ok {
		return g
	}
	if g, ok := categoryGuidance[ue.Category]; ok {
		return g
	}
	return guidance{
		"The upload failed.",
		[]string{"Retry in 2-3 minutes"},
		domain.SeverityHigh,
	}
}
