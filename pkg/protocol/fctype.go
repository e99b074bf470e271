package protocol

import "strconv"

// FCType identifies the kind of a protocol packet
type FCType int

const (
	FCTypeNull           FCType = 0
	FCTypeLogin          FCType = 1
	FCTypeAddFriend      FCType = 2
	FCTypePMesg          FCType = 3
	FCTypeStatus         FCType = 4
	FCTypeDetails        FCType = 5
	FCTypeTokenInc       FCType = 6
	FCTypeAddIgnore      FCType = 7
	FCTypePrivacy        FCType = 8
	FCTypeAddFriendReq   FCType = 9
	FCTypeUsernameLookup FCType = 10
	FCTypeZBan           FCType = 11
	FCTypeBroadcastNews  FCType = 12
	FCTypeAnnounce       FCType = 13
	FCTypeManageList     FCType = 14
	FCTypeInbox          FCType = 15
	FCTypeGWConnect      FCType = 16
	FCTypeReloadSettings FCType = 17
	FCTypeHideUsers      FCType = 18
	FCTypeRuleViolation  FCType = 19
	FCTypeSessionState   FCType = 20
	FCTypeRequestPvt     FCType = 21
	FCTypeAcceptPvt      FCType = 22
	FCTypeRejectPvt      FCType = 23
	FCTypeEndSession     FCType = 24
	FCTypeTxProfile      FCType = 25
	FCTypeStartVoyeur    FCType = 26
	FCTypeServerRefresh  FCType = 27
	FCTypeSetting        FCType = 28
	FCTypeBWStats        FCType = 29
	FCTypeTKX            FCType = 30
	FCTypeSetTextOpt     FCType = 31
	FCTypeServerConfig   FCType = 32
	FCTypeModelGroup     FCType = 33
	FCTypeRequestGrp     FCType = 34
	FCTypeStatusGrp      FCType = 35
	FCTypeGroupChat      FCType = 36
	FCTypeCloseGrp       FCType = 37
	FCTypeUCR            FCType = 38
	FCTypeMyUCR          FCType = 39
	FCTypeSlaveCon       FCType = 40
	FCTypeSlaveCmd       FCType = 41
	FCTypeSlaveFriend    FCType = 42
	FCTypeSlaveVShare    FCType = 43
	FCTypeRoomData       FCType = 44
	FCTypeNewsItem       FCType = 45
	FCTypeGuestCount     FCType = 46
	FCTypePreLoginQ      FCType = 47
	FCTypeModelGroupSz   FCType = 48
	FCTypeRoomHelper     FCType = 49
	FCTypeCMesg          FCType = 50
	FCTypeJoinChan       FCType = 51
	FCTypeCreateChan     FCType = 52
	FCTypeInviteChan     FCType = 53
	FCTypeKickChan       FCType = 54
	FCTypeQuietChan      FCType = 55
	FCTypeBanChan        FCType = 56
	FCTypePreviewChan    FCType = 57
	FCTypeShutdown       FCType = 58
	FCTypeListBans       FCType = 59
	FCTypeUnban          FCType = 60
	FCTypeSetWelcome     FCType = 61
	FCTypeChanOp         FCType = 62
	FCTypeListChan       FCType = 63
	FCTypeTags           FCType = 64
	FCTypeSetPCode       FCType = 65
	FCTypeSetMinTip      FCType = 66
	FCTypeUEOpt          FCType = 67
	FCTypeHDVideo        FCType = 68
	FCTypeMetrics        FCType = 69
	FCTypeOfferCam       FCType = 70
	FCTypeRequestCam     FCType = 71
	FCTypeMyWebcam       FCType = 72
	FCTypeMyCamState     FCType = 73
	FCTypePMHistory      FCType = 74
	FCTypeChatFlash      FCType = 75
	FCTypeTruePvt        FCType = 76
	FCTypeBookmarks      FCType = 77
	FCTypeEvent          FCType = 78
	FCTypeStateDump      FCType = 79
	FCTypeRecommend      FCType = 80
	FCTypeExtData        FCType = 81
	FCTypeNotify         FCType = 84
	FCTypePublish        FCType = 85
	FCTypeXRequest       FCType = 86
	FCTypeXResponse      FCType = 87
	FCTypeEdgeCon        FCType = 88
	FCTypeXMesg          FCType = 89
	FCTypeClubShow       FCType = 90
	FCTypeClubCmd        FCType = 91
	FCTypeZGWInvalid     FCType = 95
	FCTypeConnecting     FCType = 96
	FCTypeConnected      FCType = 97
	FCTypeDisconnected   FCType = 98
	FCTypeLogout         FCType = 99
)

var fcTypeNames = map[FCType]string{
	FCTypeNull:           "NULL",
	FCTypeLogin:          "LOGIN",
	FCTypeAddFriend:      "ADDFRIEND",
	FCTypePMesg:          "PMESG",
	FCTypeStatus:         "STATUS",
	FCTypeDetails:        "DETAILS",
	FCTypeTokenInc:       "TOKENINC",
	FCTypeAddIgnore:      "ADDIGNORE",
	FCTypePrivacy:        "PRIVACY",
	FCTypeAddFriendReq:   "ADDFRIENDREQ",
	FCTypeUsernameLookup: "USERNAMELOOKUP",
	FCTypeZBan:           "ZBAN",
	FCTypeBroadcastNews:  "BROADCASTNEWS",
	FCTypeAnnounce:       "ANNOUNCE",
	FCTypeManageList:     "MANAGELIST",
	FCTypeInbox:          "INBOX",
	FCTypeGWConnect:      "GWCONNECT",
	FCTypeReloadSettings: "RELOADSETTINGS",
	FCTypeHideUsers:      "HIDEUSERS",
	FCTypeRuleViolation:  "RULEVIOLATION",
	FCTypeSessionState:   "SESSIONSTATE",
	FCTypeRequestPvt:     "REQUESTPVT",
	FCTypeAcceptPvt:      "ACCEPTPVT",
	FCTypeRejectPvt:      "REJECTPVT",
	FCTypeEndSession:     "ENDSESSION",
	FCTypeTxProfile:      "TXPROFILE",
	FCTypeStartVoyeur:    "STARTVOYEUR",
	FCTypeServerRefresh:  "SERVERREFRESH",
	FCTypeSetting:        "SETTING",
	FCTypeBWStats:        "BWSTATS",
	FCTypeTKX:            "TKX",
	FCTypeSetTextOpt:     "SETTEXTOPT",
	FCTypeServerConfig:   "SERVERCONFIG",
	FCTypeModelGroup:     "MODELGROUP",
	FCTypeRequestGrp:     "REQUESTGRP",
	FCTypeStatusGrp:      "STATUSGRP",
	FCTypeGroupChat:      "GROUPCHAT",
	FCTypeCloseGrp:       "CLOSEGRP",
	FCTypeUCR:            "UCR",
	FCTypeMyUCR:          "MYUCR",
	FCTypeSlaveCon:       "SLAVECON",
	FCTypeSlaveCmd:       "SLAVECMD",
	FCTypeSlaveFriend:    "SLAVEFRIEND",
	FCTypeSlaveVShare:    "SLAVEVSHARE",
	FCTypeRoomData:       "ROOMDATA",
	FCTypeNewsItem:       "NEWSITEM",
	FCTypeGuestCount:     "GUESTCOUNT",
	FCTypePreLoginQ:      "PRELOGINQ",
	FCTypeModelGroupSz:   "MODELGROUPSZ",
	FCTypeRoomHelper:     "ROOMHELPER",
	FCTypeCMesg:          "CMESG",
	FCTypeJoinChan:       "JOINCHAN",
	FCTypeCreateChan:     "CREATECHAN",
	FCTypeInviteChan:     "INVITECHAN",
	FCTypeKickChan:       "KICKCHAN",
	FCTypeQuietChan:      "QUIETCHAN",
	FCTypeBanChan:        "BANCHAN",
	FCTypePreviewChan:    "PREVIEWCHAN",
	FCTypeShutdown:       "SHUTDOWN",
	FCTypeListBans:       "LISTBANS",
	FCTypeUnban:          "UNBAN",
	FCTypeSetWelcome:     "SETWELCOME",
	FCTypeChanOp:         "CHANOP",
	FCTypeListChan:       "LISTCHAN",
	FCTypeTags:           "TAGS",
	FCTypeSetPCode:       "SETPCODE",
	FCTypeSetMinTip:      "SETMINTIP",
	FCTypeUEOpt:          "UEOPT",
	FCTypeHDVideo:        "HDVIDEO",
	FCTypeMetrics:        "METRICS",
	FCTypeOfferCam:       "OFFERCAM",
	FCTypeRequestCam:     "REQUESTCAM",
	FCTypeMyWebcam:       "MYWEBCAM",
	FCTypeMyCamState:     "MYCAMSTATE",
	FCTypePMHistory:      "PMHISTORY",
	FCTypeChatFlash:      "CHATFLASH",
	FCTypeTruePvt:        "TRUEPVT",
	FCTypeBookmarks:      "BOOKMARKS",
	FCTypeEvent:          "EVENT",
	FCTypeStateDump:      "STATEDUMP",
	FCTypeRecommend:      "RECOMMEND",
	FCTypeExtData:        "EXTDATA",
	FCTypeNotify:         "NOTIFY",
	FCTypePublish:        "PUBLISH",
	FCTypeXRequest:       "XREQUEST",
	FCTypeXResponse:      "XRESPONSE",
	FCTypeEdgeCon:        "EDGECON",
	FCTypeXMesg:          "XMESG",
	FCTypeClubShow:       "CLUBSHOW",
	FCTypeClubCmd:        "CLUBCMD",
	FCTypeZGWInvalid:     "ZGWINVALID",
	FCTypeConnecting:     "CONNECTING",
	FCTypeConnected:      "CONNECTED",
	FCTypeDisconnected:   "DISCONNECTED",
	FCTypeLogout:         "LOGOUT",
}

// String returns the protocol name of the type
func (t FCType) String() string {
	if name, ok := fcTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// Known reports whether t is part of the protocol enumeration.
func (t FCType) Known() bool {
	_, ok := fcTypeNames[t]
	return ok
}
